package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"widgethub/models"

	"github.com/cespare/xxhash/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrafficGate decides whether a user takes part in a test at all.
type TrafficGate interface {
	Admit(userID uint, test *models.ABTest) bool
}

// HashGate admits a user when a stable hash of (user, test) falls below the
// test's traffic percentage. The same pair always gets the same answer, so
// concurrent first calls agree.
type HashGate struct{}

func (HashGate) Admit(userID uint, test *models.ABTest) bool {
	switch {
	case test.TrafficPercentage <= 0:
		return false
	case test.TrafficPercentage >= 100:
		return true
	}
	return bucket(userID, test.ID) < uint64(test.TrafficPercentage)
}

// bucket maps (user, test) onto [0, 100).
func bucket(userID, testID uint) uint64 {
	key := strconv.FormatUint(uint64(userID), 10) + ":" + strconv.FormatUint(uint64(testID), 10)
	return xxhash.Sum64String(key) % 100
}

// RandomGate flips a coin against the traffic percentage on every call.
type RandomGate struct {
	Source RandSource
}

func (g RandomGate) Admit(_ uint, test *models.ABTest) bool {
	return g.Source.Float64()*100 < float64(test.TrafficPercentage)
}

// ABTestService assigns users to test variants. Assignments are sticky: the
// first stored row for a (user, test) pair wins for good.
type ABTestService struct {
	db   *gorm.DB
	rnd  RandSource
	gate TrafficGate
}

func NewABTestService(db *gorm.DB, rnd RandSource, gate TrafficGate) *ABTestService {
	if gate == nil {
		gate = HashGate{}
	}
	if rnd == nil {
		rnd = NewRandSource(time.Now().UnixNano())
	}
	return &ABTestService{db: db, rnd: rnd, gate: gate}
}

// AssignVariant returns the user's variant for the test, drawing one on the
// first call. A nil variant with a nil error means the traffic gate kept the
// user out of the test.
func (s *ABTestService) AssignVariant(ctx context.Context, userID, testID uint) (*models.ABTestVariant, error) {
	if userID == 0 || testID == 0 {
		return nil, invalid("user id and test id are required")
	}
	var out *models.ABTestVariant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, excluded, err := lookupAssignment(tx, userID, testID)
		if err != nil {
			return err
		}
		if existing != nil || excluded {
			out = existing
			return nil
		}

		test, err := findTest(tx, 0, testID)
		if err != nil {
			return err
		}
		var user models.User
		if err := tx.Select("id").First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user %d not found", userID)
			}
			return internal("failed to load user", err)
		}
		var variants []models.ABTestVariant
		if err := tx.Where("ab_test_id = ?", testID).Order("id ASC").Find(&variants).Error; err != nil {
			return internal("failed to load variants", err)
		}
		if len(variants) == 0 {
			return &Error{Kind: KindNotConfigured, Message: "ab test has no variants"}
		}

		if !s.gate.Admit(userID, test) {
			return claimExclusion(tx, userID, testID)
		}

		picked := pickVariant(variants, s.rnd.Float64())
		out, err = claimUserVariant(tx, userID, testID, picked.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAssignment is a read-only lookup of the stored variant.
func (s *ABTestService) GetAssignment(ctx context.Context, userID, testID uint) (*models.ABTestVariant, error) {
	v, _, err := lookupAssignment(s.db.WithContext(ctx), userID, testID)
	return v, err
}

// IsExcluded reports whether the traffic gate kept the user out of the test.
func (s *ABTestService) IsExcluded(ctx context.Context, userID, testID uint) (bool, error) {
	_, excluded, err := lookupAssignment(s.db.WithContext(ctx), userID, testID)
	return excluded, err
}

func lookupAssignment(tx *gorm.DB, userID, testID uint) (*models.ABTestVariant, bool, error) {
	var uv models.UserVariant
	err := tx.Preload("Variant").Where("user_id = ? AND ab_test_id = ?", userID, testID).Take(&uv).Error
	if err == nil {
		return &uv.Variant, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, internal("failed to load assignment", err)
	}
	var n int64
	if err := tx.Model(&models.ABTestExclusion{}).
		Where("user_id = ? AND ab_test_id = ?", userID, testID).
		Count(&n).Error; err != nil {
		return nil, false, internal("failed to load exclusion", err)
	}
	return nil, n > 0, nil
}

// pickVariant selects the variant whose cumulative weight range contains
// draw*total. Negative weights count as zero; if every weight is zero the
// choice is uniform.
func pickVariant(variants []models.ABTestVariant, draw float64) models.ABTestVariant {
	total := 0
	for _, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	if total == 0 {
		i := int(draw * float64(len(variants)))
		if i >= len(variants) {
			i = len(variants) - 1
		}
		return variants[i]
	}
	target := draw * float64(total)
	cum := 0
	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		cum += v.Weight
		if target < float64(cum) {
			return v
		}
	}
	// draw == 1.0 or rounding: last positive-weight variant
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Weight > 0 {
			return variants[i]
		}
	}
	return variants[len(variants)-1]
}

// claimUserVariant stores the draw unless another caller got there first, in
// which case their row is adopted.
func claimUserVariant(tx *gorm.DB, userID, testID, variantID uint) (*models.ABTestVariant, error) {
	row := models.UserVariant{UserID: userID, ABTestID: testID, VariantID: variantID}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "ab_test_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, internal("failed to store assignment", err)
	}

	var winner models.UserVariant
	if err := tx.Preload("Variant").
		Where("user_id = ? AND ab_test_id = ?", userID, testID).
		Take(&winner).Error; err != nil {
		return nil, internal("failed to read assignment", err)
	}
	return &winner.Variant, nil
}

func claimExclusion(tx *gorm.DB, userID, testID uint) error {
	row := models.ABTestExclusion{UserID: userID, ABTestID: testID}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "ab_test_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal("failed to store exclusion", err)
	}
	return nil
}

func findTest(tx *gorm.DB, projectID, testID uint) (*models.ABTest, error) {
	q := tx.Where("id = ?", testID)
	if projectID != 0 {
		q = q.Where("project_id = ?", projectID)
	}
	var test models.ABTest
	err := q.First(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("ab test %d not found", testID)
	}
	if err != nil {
		return nil, internal("failed to load ab test", err)
	}
	return &test, nil
}

// ABTestInput carries editable test fields.
type ABTestInput struct {
	Name              string
	TrafficPercentage int
}

// VariantInput carries editable variant fields.
type VariantInput struct {
	Name         string
	ChannelOrder []uint
	CopyText     map[string]interface{}
	IsControl    bool
	Weight       int
}

func (in ABTestInput) validate() error {
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.TrafficPercentage < 0 || in.TrafficPercentage > 100 {
		return invalid("traffic_percentage must be between 0 and 100")
	}
	return nil
}

func (in VariantInput) validate() error {
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.Weight < 0 {
		return invalid("weight must not be negative")
	}
	return nil
}

func (s *ABTestService) ListTests(ctx context.Context, projectID uint) ([]models.ABTest, error) {
	var tests []models.ABTest
	err := s.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("project_id = ?", projectID).Order("id ASC").Find(&tests).Error
	if err != nil {
		return nil, internal("failed to list ab tests", err)
	}
	return tests, nil
}

func (s *ABTestService) GetTest(ctx context.Context, projectID, testID uint) (*models.ABTest, error) {
	db := s.db.WithContext(ctx)
	test, err := findTest(db, projectID, testID)
	if err != nil {
		return nil, err
	}
	if err := db.Where("ab_test_id = ?", test.ID).Order("id ASC").Find(&test.Variants).Error; err != nil {
		return nil, internal("failed to load variants", err)
	}
	return test, nil
}

func (s *ABTestService) CreateTest(ctx context.Context, projectID uint, in ABTestInput) (*models.ABTest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findProject(db, projectID); err != nil {
		return nil, err
	}
	test := models.ABTest{ProjectID: projectID, Name: in.Name, TrafficPercentage: in.TrafficPercentage}
	if err := db.Create(&test).Error; err != nil {
		return nil, internal("failed to create ab test", err)
	}
	return &test, nil
}

func (s *ABTestService) UpdateTest(ctx context.Context, projectID, testID uint, in ABTestInput) (*models.ABTest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	test, err := findTest(db, projectID, testID)
	if err != nil {
		return nil, err
	}
	test.Name = in.Name
	test.TrafficPercentage = in.TrafficPercentage
	if err := db.Model(test).Select("name", "traffic_percentage").Updates(test).Error; err != nil {
		return nil, internal("failed to update ab test", err)
	}
	return test, nil
}

// DeleteTest removes a test with its variants and assignments.
func (s *ABTestService) DeleteTest(ctx context.Context, projectID, testID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		test, err := findTest(tx, projectID, testID)
		if err != nil {
			return err
		}
		for _, m := range []interface{}{&models.UserVariant{}, &models.ABTestExclusion{}, &models.ABTestVariant{}} {
			if err := tx.Where("ab_test_id = ?", test.ID).Delete(m).Error; err != nil {
				return internal("failed to delete ab test rows", err)
			}
		}
		if err := tx.Delete(test).Error; err != nil {
			return internal("failed to delete ab test", err)
		}
		return nil
	})
}

func (s *ABTestService) CreateVariant(ctx context.Context, projectID, testID uint, in VariantInput) (*models.ABTestVariant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findTest(db, projectID, testID); err != nil {
		return nil, err
	}
	v := models.ABTestVariant{ABTestID: testID}
	in.apply(&v)
	if err := db.Create(&v).Error; err != nil {
		return nil, internal("failed to create variant", err)
	}
	return &v, nil
}

func (s *ABTestService) UpdateVariant(ctx context.Context, projectID, testID, variantID uint, in VariantInput) (*models.ABTestVariant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findTest(db, projectID, testID); err != nil {
		return nil, err
	}
	v, err := findVariant(db, testID, variantID)
	if err != nil {
		return nil, err
	}
	in.apply(v)
	if err := db.Model(v).Select("name", "channel_order", "copy_text", "is_control", "weight").Updates(v).Error; err != nil {
		return nil, internal("failed to update variant", err)
	}
	return v, nil
}

// DeleteVariant refuses to remove a variant users are already assigned to,
// since that would break sticky assignment.
func (s *ABTestService) DeleteVariant(ctx context.Context, projectID, testID, variantID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findTest(tx, projectID, testID); err != nil {
			return err
		}
		v, err := findVariant(tx, testID, variantID)
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.UserVariant{}).Where("variant_id = ?", v.ID).Count(&n).Error; err != nil {
			return internal("failed to count assignments", err)
		}
		if n > 0 {
			return conflict("variant %d has %d assigned users", v.ID, n)
		}
		if err := tx.Delete(v).Error; err != nil {
			return internal("failed to delete variant", err)
		}
		return nil
	})
}

func findVariant(tx *gorm.DB, testID, variantID uint) (*models.ABTestVariant, error) {
	var v models.ABTestVariant
	err := tx.Where("id = ? AND ab_test_id = ?", variantID, testID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("variant %d not found", variantID)
	}
	if err != nil {
		return nil, internal("failed to load variant", err)
	}
	return &v, nil
}

func (in VariantInput) apply(v *models.ABTestVariant) {
	v.Name = in.Name
	v.ChannelOrder = in.ChannelOrder
	if v.ChannelOrder == nil {
		v.ChannelOrder = []uint{}
	}
	v.CopyText = in.CopyText
	if v.CopyText == nil {
		v.CopyText = map[string]interface{}{}
	}
	v.IsControl = in.IsControl
	v.Weight = in.Weight
}
