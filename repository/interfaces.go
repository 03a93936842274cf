package repository

import (
	"github.com/lochel/genealogy/models"
)

// RelativeRepository defines the operations on the relative record store
type RelativeRepository interface {
	Scan() (*ScanResult, error)
	LoadAll() ([]models.Relative, error)
	Find(id string) (*models.Relative, error)
	Save(rel *models.Relative) error
	Rename(oldID, newID string) ([]string, error)
	Sorted(relatives []models.Relative, descending bool) []models.Relative
	Latest(n int) ([]models.Relative, error)
}

// UserRepository defines the methods for user data operations
type UserRepository interface {
	Create(user *models.User) error
	// CreateCapped creates user unless limit accounts already exist.
	CreateCapped(user *models.User, limit int) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	SetRole(id uint, role models.Role) error
	ListAll() ([]models.User, error)
	Count() (int64, error)
}

var _ RelativeRepository = (*RelativeStore)(nil)
