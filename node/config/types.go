package config

// Config is the sqldir configuration file.
type Config struct {
	DB  DB
	Dir Dir
}

// DB describes how to reach the store.
type DB struct {
	// Driver selects the pool: "pgx" uses a native postgres pool, anything
	// else ("postgres", "sqlite3") goes through database/sql.
	Driver string `envconfig:"DRIVER"`

	// Hosts is a list of hostnames. The first one is dialled, the rest are
	// fallbacks (pgx only).
	Hosts []string `envconfig:"HOSTS"`

	// The port to connect to. Blank for default.
	Port string `envconfig:"PORT"`

	// The username to connect as. Blank for default.
	Username string `envconfig:"USER"`

	// The password for the related username. Blank for default.
	Password string `envconfig:"PASSWORD"`

	// The database (logical partition) to use. For sqlite3 this is the file path.
	Database string `envconfig:"NAME"`

	// SSLMode is passed through to the driver, e.g. "disable" or "require".
	SSLMode string `envconfig:"SSLMODE"`

	// MaxConns caps the pool size (pgx only). Zero keeps the driver default.
	MaxConns int32 `envconfig:"MAX_CONNS"`

	// ConnectTimeout bounds a single dial.
	ConnectTimeout Duration `envconfig:"CONNECT_TIMEOUT"`
}

// Dir describes the query directory.
type Dir struct {
	// Path to the directory holding the .sql templates.
	Path string `envconfig:"PATH"`

	// Bindvar is the placeholder style: "dollar" (postgres) or "question"
	// (sqlite). Blank picks the style matching DB.Driver.
	Bindvar string `envconfig:"BINDVAR"`
}
