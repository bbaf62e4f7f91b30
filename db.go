package dailybrief

// Database is implemented by the bolt and postgres stores.
type Database interface {
	Open() error
	Close() error
}
