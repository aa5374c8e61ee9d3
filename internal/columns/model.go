package columns

import "time"

// Column is a vertical list on a board. Position orders columns left to right.
type Column struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	BoardID   string    `gorm:"column:board_id;size:64;not null;index:idx_columns_board_position,priority:1" json:"boardId"`
	Title     string    `gorm:"column:title;size:255;not null" json:"title"`
	Position  float64   `gorm:"column:position;not null;index:idx_columns_board_position,priority:2" json:"position"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Column) TableName() string {
	return "columns"
}
