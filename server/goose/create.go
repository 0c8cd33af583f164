package goose

import (
	"errors"
	"fmt"
	"os"
	"text/template"
)

func writeTemplateToFile(path string, t *template.Template, timestamp string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("failed to create file: %q already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := t.Execute(f, timestamp); err != nil {
		return "", err
	}

	return f.Name(), nil
}
