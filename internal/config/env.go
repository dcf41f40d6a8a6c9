package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".pairtask/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"pairtask/"`
	S3Region string `envconfig:"S3_REGION" default:"eu-west-1"`
	// Snapshot poll interval in seconds for backends without change
	// notification (S3).
	PollSeconds int `envconfig:"STORAGE_POLL_SECONDS" default:"5"`
}

// ParticipantEnv describes the two fixed participants sharing the task set.
type ParticipantEnv struct {
	AID      string `envconfig:"PARTICIPANT_A_ID" default:"hades"`
	AName    string `envconfig:"PARTICIPANT_A_NAME" default:"Hades"`
	AEmail   string `envconfig:"PARTICIPANT_A_EMAIL" default:"hades@pairtask.local"`
	AKeyHash string `envconfig:"PARTICIPANT_A_KEY_HASH" required:"true"`
	BID      string `envconfig:"PARTICIPANT_B_ID" default:"reiger"`
	BName    string `envconfig:"PARTICIPANT_B_NAME" default:"Reiger"`
	BEmail   string `envconfig:"PARTICIPANT_B_EMAIL" default:"reiger@pairtask.local"`
	BKeyHash string `envconfig:"PARTICIPANT_B_KEY_HASH" required:"true"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@pairtask.local"`
}

type SMTPEnv struct {
	Host     string `envconfig:"SMTP_HOST"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	User     string `envconfig:"SMTP_USER"`
	Password string `envconfig:"SMTP_PASSWORD"`
	From     string `envconfig:"SMTP_FROM" default:"pairtask@pairtask.local"`
	AppURL   string `envconfig:"APP_URL" default:"http://localhost:3200"`
}

// NotifyEnv holds the per-event channel switches. Defaults mirror the
// behavior of email being reserved for newly created tasks while push covers
// the day-to-day lifecycle.
type NotifyEnv struct {
	EmailEnabled    bool `envconfig:"NOTIFY_EMAIL_ENABLED" default:"true"`
	PushEnabled     bool `envconfig:"NOTIFY_PUSH_ENABLED" default:"true"`
	EmailOnCreated  bool `envconfig:"NOTIFY_EMAIL_ON_CREATED" default:"true"`
	EmailOnUpdated  bool `envconfig:"NOTIFY_EMAIL_ON_UPDATED" default:"false"`
	EmailOnComplete bool `envconfig:"NOTIFY_EMAIL_ON_COMPLETED" default:"false"`
	EmailOnDeleted  bool `envconfig:"NOTIFY_EMAIL_ON_DELETED" default:"false"`
	PushOnCreated   bool `envconfig:"NOTIFY_PUSH_ON_CREATED" default:"true"`
	PushOnUpdated   bool `envconfig:"NOTIFY_PUSH_ON_UPDATED" default:"true"`
	PushOnComplete  bool `envconfig:"NOTIFY_PUSH_ON_COMPLETED" default:"true"`
	PushOnDeleted   bool `envconfig:"NOTIFY_PUSH_ON_DELETED" default:"false"`
}

type Env struct {
	BaseEnv
	StorageEnv
	ParticipantEnv
	VAPIDEnv
	SMTPEnv
	NotifyEnv
}

const namespace = "PAIRTASK"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}

func SMTPEnvFromEnv(env *Env) *SMTPEnv {
	return &env.SMTPEnv
}

func NotifyEnvFromEnv(env *Env) *NotifyEnv {
	return &env.NotifyEnv
}
