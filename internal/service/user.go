package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// UserService registers customers and maintains their profile fields.
type UserService struct {
	users       repository.UserRepository
	defaultLang string
	allowed     map[string]struct{}
}

// NewUserService constructs UserService with the configured language set.
func NewUserService(users repository.UserRepository, defaultLang string, allowedLangs []string) *UserService {
	allowed := make(map[string]struct{}, len(allowedLangs))
	for _, l := range allowedLangs {
		allowed[l] = struct{}{}
	}
	return &UserService{users: users, defaultLang: defaultLang, allowed: allowed}
}

// GetOrCreate loads a user or registers one. A non-empty referralCode attaches
// the new user to its owner; self-referral is ignored. Referral attachment
// happens only at registration, so the referrer forest stays acyclic.
func (s *UserService) GetOrCreate(ctx context.Context, id int64, username, lang, referralCode string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	if _, ok := s.allowed[lang]; !ok {
		lang = s.defaultLang
	}
	var referrerID *int64
	if referralCode != "" {
		ref, refErr := s.users.GetByReferralCode(ctx, referralCode)
		if refErr == nil && ref.ID != id {
			referrerID = &ref.ID
		} else if refErr != nil && !errors.Is(refErr, errs.ErrNotFound) {
			return nil, refErr
		}
	}

	code, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u = &model.User{
		ID:           id,
		Username:     username,
		Language:     lang,
		ReferrerID:   referrerID,
		ReferralCode: code.String(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			// Lost a registration race; the winner's row is authoritative.
			return s.users.GetByID(ctx, id)
		}
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

// Get loads a user by chat id.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// SetLanguage switches the user's interface language.
func (s *UserService) SetLanguage(ctx context.Context, id int64, lang string) error {
	if _, ok := s.allowed[lang]; !ok {
		return fmt.Errorf("validation: language %q not allowed", lang)
	}
	return s.users.UpdateLanguage(ctx, id, lang)
}

// SetBlocked flips the user's block flag.
func (s *UserService) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	return s.users.SetBlocked(ctx, id, blocked)
}
