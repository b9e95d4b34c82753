package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret      string
	AllowedUserIDs []uint64

	Timezone      *time.Location
	JournalLabel  string
	MergeInterval time.Duration
	MergeLease    time.Duration

	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	GitHubAPIURL string
	ImageDir     string

	RedisURL string

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

// UseCloudinary reports whether all Cloudinary credentials are present.
func (c Config) UseCloudinary() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads .env (when present) and the environment. Missing required keys
// panic; malformed values are returned as errors.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getenv("DATABASE_URL", "data/diary.db"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		JournalLabel:         getenv("JOURNAL_LABEL", "journal"),
		GitHubBranch:         getenv("GITHUB_BRANCH", "main"),
		GitHubAPIURL:         getenv("GITHUB_API_URL", "https://api.github.com"),
		ImageDir:             getenv("IMAGE_DIR", "content/images"),
		RedisURL:             getenv("REDIS_URL", ""),
		CloudinaryName:       getenv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:     getenv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret:  getenv("CLOUDINARY_API_SECRET", ""),
	}
	cfg.CORSAllowedOrigins = splitList(getenv("CORS_ALLOWED_ORIGINS", ""))

	tzName := getenv("JOURNAL_TZ", "Asia/Shanghai")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("JOURNAL_TZ: unknown timezone %q: %w", tzName, err)
	}
	cfg.Timezone = loc

	if cfg.MergeInterval, err = getDuration("MERGE_INTERVAL", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MergeLease, err = getDuration("MERGE_LEASE", 5*time.Minute); err != nil {
		return Config{}, err
	}

	for _, s := range splitList(getenv("ALLOWED_USER_IDS", "")) {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("ALLOWED_USER_IDS: invalid id %q", s)
		}
		cfg.AllowedUserIDs = append(cfg.AllowedUserIDs, id)
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	cfg.GitHubToken = mustGetenv("GITHUB_TOKEN")
	cfg.GitHubOwner = mustGetenv("GITHUB_OWNER")
	cfg.GitHubRepo = mustGetenv("GITHUB_REPO")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
