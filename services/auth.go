package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"widgethub/models"
	"widgethub/utils"

	"github.com/badoux/checkmail"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ClientMeta describes the device a refresh token was issued to.
type ClientMeta struct {
	UserAgent string
	IP        string
}

// AuthResult is what login-style calls hand back. Role is the role the
// caller should route on; for superusers it echoes the requested role.
type AuthResult struct {
	User   *models.User
	Role   models.Role
	Tokens *utils.TokenPair
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
	Plan      models.Plan
}

// ProfileInput holds the self-editable fields; nil leaves a field alone.
type ProfileInput struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// UserAdminInput is what an admin may change on another account.
type UserAdminInput struct {
	Role     *models.Role
	Plan     *models.Plan
	IsActive *bool
}

type AuthService struct {
	db     *gorm.DB
	tokens *utils.TokenIssuer
	clock  Clock
}

func NewAuthService(db *gorm.DB, tokens *utils.TokenIssuer, clock Clock) *AuthService {
	if clock == nil {
		clock = SystemClock
	}
	return &AuthService{db: db, tokens: tokens, clock: clock}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Register creates an account. Roles and plans default to viewer and free.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, invalid("invalid email format")
	}
	if len(in.Password) < 8 {
		return nil, invalid("password must be at least 8 characters")
	}
	if in.Role == "" {
		in.Role = models.RoleViewer
	}
	if !in.Role.Valid() {
		return nil, invalid("unknown role %q", in.Role)
	}
	if in.Plan == "" {
		in.Plan = models.PlanFree
	}
	if !in.Plan.Valid() {
		return nil, invalid("unknown plan %q", in.Plan)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, internal("failed to hash password", err)
	}
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
		Plan:         in.Plan,
		IsActive:     true,
		IsStaff:      in.Role == models.RoleAdmin,
		TokenVersion: 1,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("email already exists")
		}
		return nil, internal("failed to create user", err)
	}
	return &user, nil
}

// HasUsers reports whether any account exists yet.
func (s *AuthService) HasUsers(ctx context.Context) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Limit(1).Count(&n).Error; err != nil {
		return false, internal("failed to count users", err)
	}
	return n > 0, nil
}

// PromoteToSuperuser marks the account as an admin superuser.
func (s *AuthService) PromoteToSuperuser(ctx context.Context, user *models.User) error {
	user.Role = models.RoleAdmin
	user.IsStaff = true
	user.IsSuperuser = true
	err := s.db.WithContext(ctx).Model(user).
		Select("role", "is_staff", "is_superuser").
		Updates(user).Error
	if err != nil {
		return internal("failed to promote user", err)
	}
	return nil
}

// Authenticate checks credentials. With a requiredRole, the account must hold
// that role unless it is a superuser, in which case the requested role is
// reflected back for UI routing.
func (s *AuthService) Authenticate(ctx context.Context, email, password string, requiredRole *models.Role) (*models.User, models.Role, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", normalizeEmail(email)).
		Order("is_superuser DESC").Order("created_at DESC").Order("id DESC").
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, "", internal("failed to load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", unauthorized("invalid credentials")
	}
	if !user.IsActive {
		return nil, "", forbidden("account is not active")
	}

	role := user.Role
	if requiredRole != nil && *requiredRole != "" {
		switch {
		case user.IsSuperuser:
			role = *requiredRole
		case user.Role != *requiredRole:
			return nil, "", forbidden("role mismatch")
		}
	}
	return &user, role, nil
}

// Login authenticates and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string, requiredRole *models.Role, meta ClientMeta) (*AuthResult, error) {
	user, role, err := s.Authenticate(ctx, email, password, requiredRole)
	if err != nil {
		return nil, err
	}
	tokens, err := s.IssueTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Role: role, Tokens: tokens}, nil
}

// IssueTokens signs a pair and records the refresh token so it can be
// revoked.
func (s *AuthService) IssueTokens(ctx context.Context, user *models.User, meta ClientMeta) (*utils.TokenPair, error) {
	return issueTokens(s.db.WithContext(ctx), s.tokens, user, meta)
}

func issueTokens(tx *gorm.DB, issuer *utils.TokenIssuer, user *models.User, meta ClientMeta) (*utils.TokenPair, error) {
	pair, err := issuer.GenerateTokenPair(user)
	if err != nil {
		return nil, internal("failed to sign tokens", err)
	}
	rt := models.RefreshToken{
		UserID:    user.ID,
		JTI:       pair.RefreshJTI,
		ExpiresAt: pair.RefreshExpiresAt,
		UserAgent: truncate(meta.UserAgent, 255),
		IP:        truncate(meta.IP, 64),
	}
	if err := tx.Create(&rt).Error; err != nil {
		return nil, internal("failed to store refresh token", err)
	}
	return pair, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair issued. Revoked, unknown or stale-version tokens are rejected.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*AuthResult, error) {
	claims, err := s.tokens.Parse(refreshToken, utils.TokenTypeRefresh)
	if err != nil {
		return nil, unauthorized("invalid or expired refresh token")
	}
	var out AuthResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND user_id = ? AND revoked_at IS NULL", claims.ID, claims.UserID).
			Update("revoked_at", now)
		if res.Error != nil {
			return internal("failed to revoke refresh token", res.Error)
		}
		if res.RowsAffected == 0 {
			return unauthorized("refresh token has been revoked")
		}

		var user models.User
		if err := tx.First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return unauthorized("user not found")
			}
			return internal("failed to load user", err)
		}
		if !user.IsActive {
			return forbidden("account is not active")
		}
		if user.TokenVersion != claims.TokenVersion {
			return unauthorized("invalid token version")
		}
		pair, err := issueTokens(tx, s.tokens, &user, meta)
		if err != nil {
			return err
		}
		out = AuthResult{User: &user, Role: user.Role, Tokens: pair}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the given refresh token, which must belong to userID.
func (s *AuthService) Logout(ctx context.Context, userID uint, refreshToken string) error {
	claims, err := s.tokens.Parse(refreshToken, utils.TokenTypeRefresh)
	if err != nil || claims.UserID != userID {
		return invalid("invalid or expired token")
	}
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("jti = ? AND user_id = ? AND revoked_at IS NULL", claims.ID, userID).
		Update("revoked_at", s.clock.Now())
	if res.Error != nil {
		return internal("failed to revoke refresh token", res.Error)
	}
	if res.RowsAffected == 0 {
		return invalid("invalid or expired token")
	}
	return nil
}

// UserFromAccessToken resolves the bearer of an access token.
func (s *AuthService) UserFromAccessToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token, utils.TokenTypeAccess)
	if err != nil {
		return nil, unauthorized("invalid or expired token")
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, unauthorized("user not found")
		}
		return nil, internal("failed to load user", err)
	}
	if !user.IsActive {
		return nil, forbidden("account is not active")
	}
	if claims.TokenVersion != user.TokenVersion {
		return nil, unauthorized("invalid token version")
	}
	return &user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, user *models.User, in ProfileInput) (*models.User, error) {
	cols := make([]string, 0, 3)
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := checkmail.ValidateFormat(email); err != nil {
			return nil, invalid("invalid email format")
		}
		user.Email = email
		cols = append(cols, "email")
	}
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
		cols = append(cols, "first_name")
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
		cols = append(cols, "last_name")
	}
	if len(cols) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Select(cols).Updates(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("email already exists")
		}
		return nil, internal("failed to update profile", err)
	}
	return user, nil
}

// Deactivate disables the account and invalidates every token issued so far.
func (s *AuthService) Deactivate(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Updates(map[string]interface{}{
			"is_active":     false,
			"token_version": gorm.Expr("token_version + 1"),
		}).Error; err != nil {
			return internal("failed to deactivate user", err)
		}
		if err := tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", user.ID).
			Update("revoked_at", s.clock.Now()).Error; err != nil {
			return internal("failed to revoke refresh tokens", err)
		}
		user.IsActive = false
		return nil
	})
}

func (s *AuthService) UpdatePlan(ctx context.Context, user *models.User, plan models.Plan) (*models.User, error) {
	if !plan.Valid() {
		return nil, invalid("unknown plan %q", plan)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("plan", plan).Error; err != nil {
		return nil, internal("failed to update plan", err)
	}
	user.Plan = plan
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context, page, limit int) ([]models.User, int64, error) {
	page, limit = normalizePage(page, limit)
	q := s.db.WithContext(ctx).Model(&models.User{}).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, internal("failed to count users", err)
	}
	var users []models.User
	if err := q.Order("id ASC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, internal("failed to list users", err)
	}
	return users, total, nil
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("user %d not found", id)
	}
	if err != nil {
		return nil, internal("failed to load user", err)
	}
	return &user, nil
}

// AdminUpdateUser changes role, plan or active flag. Role and activation
// changes bump the token version so outstanding tokens stop working.
func (s *AuthService) AdminUpdateUser(ctx context.Context, id uint, in UserAdminInput) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, invalid("unknown role %q", *in.Role)
		}
		updates["role"] = *in.Role
		updates["is_staff"] = *in.Role == models.RoleAdmin
	}
	if in.Plan != nil {
		if !in.Plan.Valid() {
			return nil, invalid("unknown plan %q", *in.Plan)
		}
		updates["plan"] = *in.Plan
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return user, nil
	}
	if in.Role != nil || in.IsActive != nil {
		updates["token_version"] = gorm.Expr("token_version + 1")
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, internal("failed to update user", err)
	}
	return s.GetUser(ctx, id)
}

// PruneRefreshTokens deletes tokens that expired before cutoff.
func (s *AuthService) PruneRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, internal("failed to prune refresh tokens", res.Error)
	}
	return res.RowsAffected, nil
}
