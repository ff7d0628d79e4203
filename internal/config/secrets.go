package config

import (
	"fmt"
	"os"
	"strings"
)

const dockerSecretsDir = "/run/secrets"

// ReadSecret ищет секрет по порядку: переменная окружения envName,
// файл из envName_FILE, файл Docker Secrets /run/secrets/<secretName>.
// При required=true отсутствие секрета является ошибкой.
func ReadSecret(envName, secretName string, required bool) (string, error) {
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}

	paths := make([]string, 0, 2)
	if p := os.Getenv(envName + "_FILE"); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, fmt.Sprintf("%s/%s", dockerSecretsDir, secretName))

	for _, filePath := range paths {
		secretBytes, err := os.ReadFile(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
		}
		secret := strings.TrimSpace(string(secretBytes))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", filePath)
		}
		return secret, nil
	}

	if required {
		return "", fmt.Errorf("secret %s is not set (env %s, %s_FILE or %s/%s)", secretName, envName, envName, dockerSecretsDir, secretName)
	}
	return "", nil
}
