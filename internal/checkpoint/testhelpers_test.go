package checkpoint

import "os"

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func openForTest(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0o644)
}
