package config

type GeneralConfig struct {
	LogDirectory string `yaml:"logDirectory"`
	LogColors    bool   `yaml:"logColors"`
	JsonLogs     bool   `yaml:"jsonLogs"`
	LogLevel     string `yaml:"logLevel"`
}

type DbPoolConfig struct {
	MaxConnections int `yaml:"maxConnections"`
	MaxIdle        int `yaml:"maxIdleConnections"`
}

type DatabaseConfig struct {
	Postgres string        `yaml:"postgres"`
	Pool     *DbPoolConfig `yaml:"pool"`
}

type ObjectStoreConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKeyId  string `yaml:"accessKeyId"`
	AccessSecret string `yaml:"accessSecret"`
	Ssl          bool   `yaml:"ssl"`
}

type DiscoveryConfig struct {
	ScanIntervalSeconds int  `yaml:"scanIntervalSeconds"`
	MaxManifestAgeDays  int  `yaml:"maxManifestAgeDays"`
	MaxManifestsPerScan int  `yaml:"maxManifestsPerScan"`
	AllowSynthetic      bool `yaml:"allowSyntheticData"`
}

type LoadConfig struct {
	Workers              int    `yaml:"workers"`
	BatchSize            int    `yaml:"batchSize"`
	PrefetchWindow       int    `yaml:"prefetchWindow"`
	IdempotencyRequired  bool   `yaml:"idempotencyRequired"`
	FlushIntervalSeconds int    `yaml:"flushIntervalSeconds"`
	PatienceHours        int    `yaml:"patienceHours"`
	CacheDirectory       string `yaml:"cacheDirectory"`
	MinFreeBytes         int64  `yaml:"minFreeBytes"`
	IdentifierFields     []int  `yaml:"identifierFields,flow"`
}

type HashingConfig struct {
	PepperHex  string `yaml:"pepper"`
	Iterations int    `yaml:"iterations"`
	CacheSize  int    `yaml:"cacheSize"`
}

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

type SentryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dsn         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`
}

type PipelineConfig struct {
	General     GeneralConfig     `yaml:"pipeline"`
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"objectStore"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Load        LoadConfig        `yaml:"load"`
	Hashing     HashingConfig     `yaml:"hashing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Sentry      SentryConfig      `yaml:"sentry"`
}
