package catalog

import (
	"fmt"
	"os"
)

func writeFile(path, content string) error { return os.WriteFile(path, []byte(content), 0o600) }

func sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
