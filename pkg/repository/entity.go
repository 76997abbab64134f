package repository

// Entity lets a row type name its table. Types that do not implement it get
// gorm's default naming: the snake_case plural of the type name.
type Entity interface {
	TableName() string
}
