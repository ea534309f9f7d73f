package temporalx

import "github.com/yungbote/atlas-ingest/internal/platform/envutil"

const (
	defaultNamespace          = "atlas-ingest"
	defaultTaskQueue          = "atlas-file-validation"
	defaultValidationWorkflow = "validate_file"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	// ValidationWorkflow is the workflow type the batch validator worker registers.
	ValidationWorkflow string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string
}

func LoadConfig() Config {
	return Config{
		Address:            envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace:          envutil.String("TEMPORAL_NAMESPACE", defaultNamespace),
		TaskQueue:          envutil.String("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		ValidationWorkflow: envutil.String("VALIDATION_WORKFLOW_NAME", defaultValidationWorkflow),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),
	}
}

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
