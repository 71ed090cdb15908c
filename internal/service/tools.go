package service

import (
	"path/filepath"
	"strings"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
)

// validateIngest normalizes the filename in place and resolves the output format from its extension
func validateIngest(data *model.IngestData) (model.Format, error) {
	if data == nil {
		return "", model.ErrEmptyUpload
	}
	if data.ProjectID <= 0 {
		return "", model.ErrIncorrectProject
	}

	// имя файла становится ключом в хранилище - отрезаем путь клиента
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(data.Filename, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "", model.ErrUnsupportedExt
	}
	data.Filename = name

	format, err := model.FormatFromFilename(name)
	if err != nil {
		return "", err
	}

	if len(data.Data) == 0 {
		return "", model.ErrEmptyUpload
	}
	return format, nil
}
