package entity

type User struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Username    string `json:"username" gorm:"uniqueIndex;not null"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser" gorm:"not null;default:false"`
}
