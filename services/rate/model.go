package rate

import "time"

// Rate is the points-per-night price of one region. Changing a rate only
// affects bookings priced after the change; existing bookings keep the
// cost frozen at request time.
type Rate struct {
	ID             string    `gorm:"column:id;primaryKey" json:"id"`
	Region         string    `gorm:"column:region;uniqueIndex" json:"region"`
	PointsPerNight int64     `gorm:"column:points_per_night" json:"points_per_night"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Rate) TableName() string {
	return "provincial_rates"
}
