package models

const (
	AppName = "amd-helper"
	// prefix for every temp file the pipeline creates
	TempPrefix = "amd-helper-"
)

type AudioFormat string

const (
	AFMP3 AudioFormat = "mp3"
	AFWAV AudioFormat = "wav"
)

func (f AudioFormat) Ext() string {
	return "." + string(f)
}
