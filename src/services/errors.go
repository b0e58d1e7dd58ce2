package services

import "errors"

var (
	ErrParsingFailed    = errors.New("could not clean the uploaded file")
	ErrProcessingFailed = errors.New("could not summarize transactions")
	ErrStorageFailed    = errors.New("could not store upload artifacts")
	ErrUploadNotFound   = errors.New("upload not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)
