package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"widgethub/models"
	"widgethub/utils/testdb"
)

// seqRand replays fixed draws.
type seqRand struct {
	mu    sync.Mutex
	draws []float64
}

func (s *seqRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draws[0]
	s.draws = append(s.draws[1:], d)
	return d
}

type abFixture struct {
	db      *gorm.DB
	project *models.Project
	test    *models.ABTest
	a, b    *models.ABTestVariant
}

func newABFixture(t *testing.T, traffic, weightA, weightB int) abFixture {
	t.Helper()
	db := testdb.New(t)
	project := testdb.Project(t, db, "UTC")
	svc := NewABTestService(db, nil, nil)
	ctx := context.Background()

	test, err := svc.CreateTest(ctx, project.ID, ABTestInput{Name: "buttons", TrafficPercentage: traffic})
	require.NoError(t, err)
	a, err := svc.CreateVariant(ctx, project.ID, test.ID, VariantInput{Name: "A", IsControl: true, Weight: weightA})
	require.NoError(t, err)
	b, err := svc.CreateVariant(ctx, project.ID, test.ID, VariantInput{Name: "B", Weight: weightB, ChannelOrder: []uint{3, 1}})
	require.NoError(t, err)
	return abFixture{db: db, project: project, test: test, a: a, b: b}
}

func TestAssignVariantIsSticky(t *testing.T) {
	f := newABFixture(t, 100, 50, 50)
	user := testdb.User(t, f.db, "u@example.com", models.RoleViewer)
	svc := NewABTestService(f.db, &seqRand{draws: []float64{0.9, 0.1}}, HashGate{})
	ctx := context.Background()

	first, err := svc.AssignVariant(ctx, user.ID, f.test.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, f.b.ID, first.ID)
	assert.Equal(t, []uint{3, 1}, []uint(first.ChannelOrder))

	// the next draw would pick A, but the stored row wins
	again, err := svc.AssignVariant(ctx, user.ID, f.test.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	got, err := svc.GetAssignment(ctx, user.ID, f.test.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}

func TestAssignVariantConcurrentFirstCalls(t *testing.T) {
	f := newABFixture(t, 100, 50, 50)
	user := testdb.User(t, f.db, "u@example.com", models.RoleViewer)
	svc := NewABTestService(f.db, NewRandSource(7), HashGate{})

	const callers = 8
	got := make([]uint, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.AssignVariant(context.Background(), user.ID, f.test.ID)
			if assert.NoError(t, err) && assert.NotNil(t, v) {
				got[i] = v.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range got {
		assert.Equal(t, got[0], id)
	}
	var n int64
	require.NoError(t, f.db.Model(&models.UserVariant{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestAssignVariantWeightedDistribution(t *testing.T) {
	f := newABFixture(t, 100, 70, 30)
	svc := NewABTestService(f.db, NewRandSource(42), HashGate{})
	ctx := context.Background()

	const users = 1000
	counts := map[uint]int{}
	for i := 0; i < users; i++ {
		u := testdb.User(t, f.db, fmt.Sprintf("u%d@example.com", i), models.RoleViewer)
		v, err := svc.AssignVariant(ctx, u.ID, f.test.ID)
		require.NoError(t, err)
		require.NotNil(t, v)
		counts[v.ID]++
	}
	share := float64(counts[f.a.ID]) / users
	assert.InDelta(t, 0.7, share, 0.05)
	assert.Equal(t, users, counts[f.a.ID]+counts[f.b.ID])
}

func TestAssignVariantExclusionIsSticky(t *testing.T) {
	f := newABFixture(t, 0, 50, 50)
	user := testdb.User(t, f.db, "u@example.com", models.RoleViewer)
	svc := NewABTestService(f.db, nil, HashGate{})
	ctx := context.Background()

	v, err := svc.AssignVariant(ctx, user.ID, f.test.ID)
	require.NoError(t, err)
	assert.Nil(t, v)

	excluded, err := svc.IsExcluded(ctx, user.ID, f.test.ID)
	require.NoError(t, err)
	assert.True(t, excluded)

	// opening the test up later does not pull the user back in
	_, err = svc.UpdateTest(ctx, f.project.ID, f.test.ID, ABTestInput{Name: "buttons", TrafficPercentage: 100})
	require.NoError(t, err)
	v, err = svc.AssignVariant(ctx, user.ID, f.test.ID)
	require.NoError(t, err)
	assert.Nil(t, v)

	var n int64
	require.NoError(t, f.db.Model(&models.UserVariant{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAssignVariantErrors(t *testing.T) {
	db := testdb.New(t)
	project := testdb.Project(t, db, "UTC")
	user := testdb.User(t, db, "u@example.com", models.RoleViewer)
	svc := NewABTestService(db, nil, nil)
	ctx := context.Background()

	_, err := svc.AssignVariant(ctx, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.AssignVariant(ctx, user.ID, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := svc.CreateTest(ctx, project.ID, ABTestInput{Name: "empty", TrafficPercentage: 100})
	require.NoError(t, err)
	_, err = svc.AssignVariant(ctx, user.ID, empty.ID)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.CreateVariant(ctx, project.ID, empty.ID, VariantInput{Name: "A", Weight: 1})
	require.NoError(t, err)
	_, err = svc.AssignVariant(ctx, 12345, empty.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTestValidation(t *testing.T) {
	db := testdb.New(t)
	project := testdb.Project(t, db, "UTC")
	svc := NewABTestService(db, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateTest(ctx, project.ID, ABTestInput{Name: "", TrafficPercentage: 10})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.CreateTest(ctx, project.ID, ABTestInput{Name: "x", TrafficPercentage: 101})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	zero, err := svc.CreateTest(ctx, project.ID, ABTestInput{Name: "closed", TrafficPercentage: 0})
	require.NoError(t, err)
	stored, err := svc.GetTest(ctx, project.ID, zero.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TrafficPercentage)
}

func TestZeroSettingsArePersisted(t *testing.T) {
	db := testdb.New(t)
	project := testdb.Project(t, db, "UTC")
	svc := NewABTestService(db, nil, nil)
	ctx := context.Background()

	test, err := svc.CreateTest(ctx, project.ID, ABTestInput{Name: "closed", TrafficPercentage: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, test.TrafficPercentage)
	v, err := svc.CreateVariant(ctx, project.ID, test.ID, VariantInput{Name: "off", Weight: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, v.Weight)

	var rowTest models.ABTest
	require.NoError(t, db.First(&rowTest, test.ID).Error)
	assert.Equal(t, 0, rowTest.TrafficPercentage)
	var rowVariant models.ABTestVariant
	require.NoError(t, db.First(&rowVariant, v.ID).Error)
	assert.Equal(t, 0, rowVariant.Weight)
	assert.False(t, rowVariant.IsControl)

	// a closed test admits nobody, even with a variant available
	user := testdb.User(t, db, "u@example.com", models.RoleViewer)
	got, err := svc.AssignVariant(ctx, user.ID, test.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteVariantWithAssignments(t *testing.T) {
	f := newABFixture(t, 100, 100, 0)
	user := testdb.User(t, f.db, "u@example.com", models.RoleViewer)
	svc := NewABTestService(f.db, nil, nil)
	ctx := context.Background()

	v, err := svc.AssignVariant(ctx, user.ID, f.test.ID)
	require.NoError(t, err)
	require.Equal(t, f.a.ID, v.ID)

	err = svc.DeleteVariant(ctx, f.project.ID, f.test.ID, f.a.ID)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, svc.DeleteVariant(ctx, f.project.ID, f.test.ID, f.b.ID))

	require.NoError(t, svc.DeleteTest(ctx, f.project.ID, f.test.ID))
	var n int64
	require.NoError(t, f.db.Model(&models.UserVariant{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPickVariant(t *testing.T) {
	a := models.ABTestVariant{ID: 1, Weight: 70}
	b := models.ABTestVariant{ID: 2, Weight: 30}
	zero := models.ABTestVariant{ID: 3, Weight: 0}

	tests := []struct {
		name     string
		variants []models.ABTestVariant
		draw     float64
		want     uint
	}{
		{"low draw", []models.ABTestVariant{a, b}, 0, 1},
		{"just below boundary", []models.ABTestVariant{a, b}, 0.699, 1},
		{"at boundary", []models.ABTestVariant{a, b}, 0.7, 2},
		{"top draw", []models.ABTestVariant{a, b}, 0.999, 2},
		{"draw of one", []models.ABTestVariant{a, b}, 1, 2},
		{"zero weight skipped", []models.ABTestVariant{zero, b}, 0, 2},
		{"all zero is uniform", []models.ABTestVariant{zero, {ID: 4}}, 0.6, 4},
		{"negative counts as zero", []models.ABTestVariant{{ID: 5, Weight: -10}, a}, 0.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickVariant(tt.variants, tt.draw).ID)
		})
	}
}

func TestHashGate(t *testing.T) {
	gate := HashGate{}
	assert.False(t, gate.Admit(1, &models.ABTest{ID: 1, TrafficPercentage: 0}))
	assert.True(t, gate.Admit(1, &models.ABTest{ID: 1, TrafficPercentage: 100}))

	half := &models.ABTest{ID: 9, TrafficPercentage: 50}
	admitted := 0
	for u := uint(1); u <= 2000; u++ {
		first := gate.Admit(u, half)
		assert.Equal(t, first, gate.Admit(u, half))
		if first {
			admitted++
		}
	}
	assert.InDelta(t, 1000, admitted, 150)
}

func TestRandomGate(t *testing.T) {
	gate := RandomGate{Source: &seqRand{draws: []float64{0.25}}}
	assert.True(t, gate.Admit(1, &models.ABTest{TrafficPercentage: 30}))
	assert.False(t, gate.Admit(1, &models.ABTest{TrafficPercentage: 20}))
}
