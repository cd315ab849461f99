package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	Port            string
	SeedFile        string
	WorkerCount     int
	RefreshInterval int
	FetchTimeout    int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
