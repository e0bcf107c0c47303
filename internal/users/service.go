package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/auth"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates another account already registered the email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrAccountNotFound indicates no account carries the requested id.
	ErrAccountNotFound = errors.New("users: account not found")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)

// InvalidSignUpError reports which signup fields failed validation.
type InvalidSignUpError struct {
	Fields []string
}

func (e *InvalidSignUpError) Error() string {
	return "users: invalid signup: " + strings.Join(e.Fields, ", ")
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	NewID    func() (string, error)
	Hasher   func(string) (string, error)
}

// Service registers and authenticates accounts.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	newID    func() (string, error)
	hash     func(string) (string, error)
	validate *validator.Validate
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = newAccountID
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.HashPassword
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		newID:    newID,
		hash:     hasher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// SignUp validates the request and stores a new account with a hashed password.
func (s *Service) SignUp(ctx context.Context, request SignUpRequest) (Account, error) {
	request.Email = normalizeEmail(request.Email)
	request.Name = strings.TrimSpace(request.Name)
	if err := s.validate.Struct(request); err != nil {
		return Account{}, invalidSignUp(err)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("email = ?", request.Email).Count(&existing).Error; err != nil {
		return Account{}, err
	}
	if existing > 0 {
		return Account{}, ErrEmailTaken
	}

	hashed, err := s.hash(request.Password)
	if err != nil {
		return Account{}, err
	}
	accountID, err := s.newID()
	if err != nil {
		return Account{}, err
	}
	account := Account{
		AccountID:    accountID,
		Email:        request.Email,
		PasswordHash: hashed,
		CreatedAt:    s.now().UTC(),
	}
	if request.Name != "" {
		name := request.Name
		account.Name = &name
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}
	return account, nil
}

// Authenticate returns the account matching the email and password.
func (s *Service) Authenticate(ctx context.Context, email string, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	return account, nil
}

// Get loads an account by id. A missing account yields ErrAccountNotFound.
func (s *Service) Get(ctx context.Context, accountID string) (Account, error) {
	var accounts []Account
	if err := s.db.WithContext(ctx).Where("account_id = ?", strings.TrimSpace(accountID)).Limit(1).Find(&accounts).Error; err != nil {
		return Account{}, err
	}
	if len(accounts) == 0 {
		return Account{}, ErrAccountNotFound
	}
	return accounts[0], nil
}

func invalidSignUp(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &InvalidSignUpError{Fields: []string{err.Error()}}
	}
	fields := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		fields = append(fields, strings.ToLower(fieldError.Field()))
	}
	return &InvalidSignUpError{Fields: fields}
}

func newAccountID() (string, error) {
	identifier, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return identifier.String(), nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
