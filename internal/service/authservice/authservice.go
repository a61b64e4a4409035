package authservice

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/service/walletservice"
	"github.com/turbocompute/backend/pkg/auth"
	"go.uber.org/zap"
)

type Repo interface {
	FindByLogin(ctx context.Context, login string) (*domain.User, error)
	FindByReferralCode(ctx context.Context, code string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
}

type Wallet interface {
	GetAccount(ctx context.Context, ownerID int) (*domain.WalletAccount, error)
	Credit(ctx context.Context, ownerID int, amount float64, kind string, externalRef *string) (*domain.LedgerEntry, error)
}

type Service struct {
	userRepo     Repo
	wallet       Wallet
	hashService  auth.HashServiceInterface
	jwtService   auth.JWTServiceInterface
	signupCredit float64
}

func New(repo Repo, wallet Wallet, hashService auth.HashServiceInterface, jwtService auth.JWTServiceInterface, signupCredit float64) *Service {
	return &Service{
		userRepo:     repo,
		wallet:       wallet,
		hashService:  hashService,
		jwtService:   jwtService,
		signupCredit: signupCredit,
	}
}

func (s *Service) Register(ctx context.Context, login, password, referralCode string) (*domain.User, error) {
	existingUser, err := s.userRepo.FindByLogin(ctx, login)
	if err != nil {
		zap.L().Error("can't find user: ", zap.Error(err))
		return nil, err
	}
	if existingUser != nil {
		zap.L().Info("user already exists, login: ", zap.String("login", login))
		return nil, errors.New("username already taken")
	}

	var referredBy *int
	if referralCode != "" {
		referrer, err := s.userRepo.FindByReferralCode(ctx, referralCode)
		if err != nil {
			zap.L().Error("can't resolve referral code: ", zap.Error(err))
			return nil, err
		}
		if referrer != nil {
			referredBy = &referrer.ID
		}
	}

	hashedPassword, err := s.hashService.HashPassword(password)
	if err != nil {
		zap.L().Error("can't hash password: ", zap.Error(err))
		return nil, err
	}
	user := &domain.User{
		Login:        login,
		PasswordHash: hashedPassword,
		ReferralCode: uuid.NewString()[:8],
		ReferredBy:   referredBy,
	}
	newUser, err := s.userRepo.Create(ctx, user)
	if err != nil {
		zap.L().Error("can't create user: ", zap.Error(err))
		return nil, err
	}

	if _, err := s.wallet.GetAccount(ctx, newUser.ID); err != nil {
		zap.L().Error("can't create wallet account: ", zap.Error(err))
		return nil, err
	}

	if s.signupCredit > 0 {
		ref := "signup:" + strconv.Itoa(newUser.ID)
		if _, err := s.wallet.Credit(ctx, newUser.ID, s.signupCredit, walletservice.KindSignupCredit, &ref); err != nil {
			zap.L().Error("can't apply signup credit: ", zap.Error(err))
			return nil, err
		}
	}

	zap.L().Info("user successfully registered", zap.String("login", login))
	return user, nil
}

func (s *Service) Authenticate(ctx context.Context, login, password string) (*domain.User, error) {
	user, err := s.userRepo.FindByLogin(ctx, login)
	if err != nil || user == nil {
		zap.L().Error("invalid credentials", zap.Error(err))
		return nil, errors.New("invalid credentials")
	}
	if ok := s.hashService.ComparePassword(user.PasswordHash, password); !ok {
		zap.L().Error("invalid credentials", zap.Error(err))
		return nil, errors.New("invalid credentials")
	}
	zap.L().Info("user successfully authenticated", zap.String("login", login))
	return user, nil
}

func (s *Service) GenerateToken(userID int) (string, error) {
	expirationTime := time.Now().Add(24 * time.Hour)

	token, err := s.jwtService.GenerateJWT(userID, expirationTime)
	if err != nil {
		zap.L().Error("can't generate token: ", zap.Error(err))
		return "", err
	}
	return token, nil
}
