package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"gorm.io/gorm"
)

// DomainRepositoryTestSuite is the test suite for DomainRepository
type DomainRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo DomainRepository
}

// SetupSuite runs once before all tests
func (s *DomainRepositoryTestSuite) SetupSuite() {
	s.db = openTestDB(s.T())
	s.repo = NewDomainRepository(s.db)
}

// TearDownSuite runs once after all tests
func (s *DomainRepositoryTestSuite) TearDownSuite() {
	closeTestDB(s.db)
}

// SetupTest runs before each test - clean up data
func (s *DomainRepositoryTestSuite) SetupTest() {
	cleanTables(s.db)
}

// TestDomainRepositoryTestSuite runs the test suite
func TestDomainRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(DomainRepositoryTestSuite))
}

func (s *DomainRepositoryTestSuite) TestCreate_NormalizesName() {
	domain := &models.Domain{Name: " Example.COM ", OrganizationID: "T1", IsActive: true}

	err := s.repo.Create(context.Background(), domain)

	require.NoError(s.T(), err)
	assert.NotZero(s.T(), domain.ID)
	assert.Equal(s.T(), "example.com", domain.Name)
}

func (s *DomainRepositoryTestSuite) TestCreate_DuplicateName_ReturnsError() {
	require.NoError(s.T(), s.repo.Create(context.Background(), &models.Domain{Name: "example.com", OrganizationID: "T1", IsActive: true}))

	err := s.repo.Create(context.Background(), &models.Domain{Name: "EXAMPLE.com", OrganizationID: "T2", IsActive: true})

	assert.ErrorIs(s.T(), err, ErrDuplicateEntry)
}

func (s *DomainRepositoryTestSuite) TestResolveOrganization() {
	require.NoError(s.T(), s.repo.Create(context.Background(), &models.Domain{Name: "active.com", OrganizationID: "T1", IsActive: true}))
	require.NoError(s.T(), s.repo.Create(context.Background(), &models.Domain{Name: "inactive.com", OrganizationID: "T1", IsActive: false}))

	org, err := s.repo.ResolveOrganization(context.Background(), "Active.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "T1", org)

	_, err = s.repo.ResolveOrganization(context.Background(), "inactive.com")
	assert.ErrorIs(s.T(), err, ErrNotFound)

	_, err = s.repo.ResolveOrganization(context.Background(), "unknown.com")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *DomainRepositoryTestSuite) TestList_ScopedAndOrdered() {
	require.NoError(s.T(), s.repo.Create(context.Background(), &models.Domain{Name: "b.com", OrganizationID: "T1", IsActive: true}))
	require.NoError(s.T(), s.repo.Create(context.Background(), &models.Domain{Name: "a.com", OrganizationID: "T1", IsActive: false}))
	require.NoError(s.T(), s.repo.Create(context.Background(), &models.Domain{Name: "c.com", OrganizationID: "T2", IsActive: true}))

	all, err := s.repo.List(context.Background(), "T1", false)
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 2)
	assert.Equal(s.T(), "a.com", all[0].Name)

	active, err := s.repo.List(context.Background(), "T1", true)
	require.NoError(s.T(), err)
	require.Len(s.T(), active, 1)
	assert.Equal(s.T(), "b.com", active[0].Name)
}

func (s *DomainRepositoryTestSuite) TestDelete() {
	domain := &models.Domain{Name: "a.com", OrganizationID: "T1", IsActive: true}
	require.NoError(s.T(), s.repo.Create(context.Background(), domain))

	assert.ErrorIs(s.T(), s.repo.Delete(context.Background(), "T2", domain.ID), ErrNotFound)
	require.NoError(s.T(), s.repo.Delete(context.Background(), "T1", domain.ID))
	assert.ErrorIs(s.T(), s.repo.Delete(context.Background(), "T1", domain.ID), ErrNotFound)
}
