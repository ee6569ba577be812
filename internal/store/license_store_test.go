package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vistahub/license-gate/internal/licensing"
	"github.com/vistahub/license-gate/internal/models"
	"github.com/vistahub/license-gate/internal/store"
	"github.com/vistahub/license-gate/internal/testutil"
)

type LicenseStoreTestSuite struct {
	suite.Suite
	ctx      context.Context
	licenses *store.LicenseStore
	projects *store.ProjectStore
	logs     *store.AccessLogStore
	project  *models.Project
}

func (s *LicenseStoreTestSuite) SetupTest() {
	db := testutil.NewDB(s.T())
	s.ctx = context.Background()
	s.licenses = store.NewLicenseStore(db)
	s.projects = store.NewProjectStore(db)
	s.logs = store.NewAccessLogStore(db)

	s.project = &models.Project{Name: "aimbot", PayloadRef: "https://cdn.example/payload.lua"}
	s.Require().NoError(s.projects.Create(s.ctx, s.project))
}

func (s *LicenseStoreTestSuite) newLicense(key string) *models.License {
	l := &models.License{
		Key:          key,
		ProjectID:    s.project.ID,
		DurationDays: 7,
		Status:       models.LicenseStatusWaiting,
	}
	s.Require().NoError(s.licenses.Create(s.ctx, l))
	return l
}

func (s *LicenseStoreTestSuite) TestGetNotFound() {
	_, err := s.licenses.Get(s.ctx, "VISTA-NOPE-NOPE-NOPE")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *LicenseStoreTestSuite) TestGetPreloadsProject() {
	s.newLicense("VISTA-AAAA-AAAA-AAAA")

	l, err := s.licenses.Get(s.ctx, "VISTA-AAAA-AAAA-AAAA")
	s.Require().NoError(err)
	s.Equal("aimbot", l.Project.Name)
	s.Equal(models.LicenseStatusWaiting, l.Status)
	s.EqualValues(0, l.Version)
}

func (s *LicenseStoreTestSuite) TestApplyTransitionCompareAndSwap() {
	l := s.newLicense("VISTA-BBBB-BBBB-BBBB")
	now := time.Now().UTC().Truncate(time.Second)

	first := licensing.Decide(l, "D1", now)
	second := licensing.Decide(l, "D2", now)

	s.Require().NoError(s.licenses.ApplyTransition(s.ctx, l.Key, l.Version, *first.Transition))
	err := s.licenses.ApplyTransition(s.ctx, l.Key, l.Version, *second.Transition)
	s.ErrorIs(err, store.ErrConflict)

	stored, err := s.licenses.Get(s.ctx, l.Key)
	s.Require().NoError(err)
	s.Equal(models.LicenseStatusActive, stored.Status)
	s.Require().NotNil(stored.BoundDeviceID)
	s.Equal("D1", *stored.BoundDeviceID)
	s.EqualValues(1, stored.Version)
	s.Require().NotNil(stored.ExpiresAt)
	s.WithinDuration(now.Add(7*24*time.Hour), *stored.ExpiresAt, time.Second)
}

func (s *LicenseStoreTestSuite) TestApplyTransitionClearsBinding() {
	l := s.newLicense("VISTA-CCCC-CCCC-CCCC")
	d := licensing.Decide(l, "D1", time.Now())
	s.Require().NoError(s.licenses.ApplyTransition(s.ctx, l.Key, 0, *d.Transition))

	stored, err := s.licenses.Get(s.ctx, l.Key)
	s.Require().NoError(err)
	s.Require().NoError(s.licenses.ApplyTransition(s.ctx, l.Key, stored.Version, licensing.ResetBinding(stored)))

	reset, err := s.licenses.Get(s.ctx, l.Key)
	s.Require().NoError(err)
	s.Nil(reset.BoundDeviceID)
	s.Equal(models.LicenseStatusActive, reset.Status)
	s.Equal(stored.ExpiresAt.Unix(), reset.ExpiresAt.Unix())
}

func (s *LicenseStoreTestSuite) TestSetOwnerBumpsVersion() {
	l := s.newLicense("VISTA-DDDD-DDDD-DDDD")
	s.Require().NoError(s.licenses.SetOwner(s.ctx, l.Key, "discord:42"))

	owned, err := s.licenses.ListByOwner(s.ctx, "discord:42")
	s.Require().NoError(err)
	s.Require().Len(owned, 1)
	s.EqualValues(1, owned[0].Version)

	s.ErrorIs(s.licenses.SetOwner(s.ctx, "VISTA-NOPE-NOPE-NOPE", "discord:42"), store.ErrNotFound)
}

func (s *LicenseStoreTestSuite) TestListFilters() {
	s.newLicense("VISTA-EEEE-EEEE-0001")
	banned := s.newLicense("VISTA-EEEE-EEEE-0002")
	s.Require().NoError(s.licenses.ApplyTransition(s.ctx, banned.Key, 0, licensing.Ban(banned)))

	status := models.LicenseStatusBanned
	list, total, err := s.licenses.List(s.ctx, store.LicenseFilter{Status: &status, Limit: 10})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Require().Len(list, 1)
	s.Equal(banned.Key, list[0].Key)

	list, total, err = s.licenses.List(s.ctx, store.LicenseFilter{ProjectID: &s.project.ID, Limit: 1})
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(list, 1)
}

func (s *LicenseStoreTestSuite) TestDeleteRemovesAccessLogs() {
	l := s.newLicense("VISTA-FFFF-FFFF-FFFF")
	s.Require().NoError(s.logs.Append(s.ctx, &models.AccessLog{LicenseKey: l.Key, DeviceID: "D1", Outcome: models.AccessOutcomeGranted}))
	s.Require().NoError(s.logs.Append(s.ctx, &models.AccessLog{LicenseKey: "VISTA-OTHER", DeviceID: "D1", Outcome: models.AccessOutcomeRefused}))

	s.Require().NoError(s.licenses.Delete(s.ctx, l.Key))

	_, err := s.licenses.Get(s.ctx, l.Key)
	s.ErrorIs(err, store.ErrNotFound)

	_, total, err := s.logs.ListByLicense(s.ctx, l.Key, 0, 10)
	s.Require().NoError(err)
	s.EqualValues(0, total)

	_, total, err = s.logs.ListByLicense(s.ctx, "VISTA-OTHER", 0, 10)
	s.Require().NoError(err)
	s.EqualValues(1, total)

	s.ErrorIs(s.licenses.Delete(s.ctx, l.Key), store.ErrNotFound)
}

func TestLicenseStoreSuite(t *testing.T) {
	suite.Run(t, new(LicenseStoreTestSuite))
}

func TestProjectStoreGetByName(t *testing.T) {
	ctx := context.Background()
	projects := store.NewProjectStore(testutil.NewDB(t))

	require.NoError(t, projects.Create(ctx, &models.Project{Name: "esp", PayloadRef: "s3://bucket/esp.lua"}))

	p, err := projects.GetByName(ctx, "esp")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/esp.lua", p.PayloadRef)

	_, err = projects.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = projects.Create(ctx, &models.Project{Name: "esp", PayloadRef: "https://other"})
	assert.Error(t, err)
}

func TestDatabaseNonceStoreClaimOnceBasic(t *testing.T) {
	ctx := context.Background()
	nonces := store.NewDatabaseNonceStore(testutil.NewDB(t))

	ok, err := nonces.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = nonces.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = nonces.Claim(ctx, "def", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDatabaseNonceStorePruneBasic(t *testing.T) {
	ctx := context.Background()
	nonces := store.NewDatabaseNonceStore(testutil.NewDB(t))

	_, err := nonces.Claim(ctx, "old", -time.Minute)
	require.NoError(t, err)
	_, err = nonces.Claim(ctx, "fresh", time.Minute)
	require.NoError(t, err)

	n, err := nonces.Prune(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
