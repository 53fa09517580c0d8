package storage

import (
	"encoding/json"
	"errors"

	"districtevo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// stamp fills in the current versions of a record written without them.
func stamp(v *model.VersionedRecord) {
	if v.SchemaVersion == 0 && v.CodecVersion == 0 {
		*v = currentVersion()
	}
}

func EncodeGeneration(s model.GenerationSnapshot) ([]byte, error) {
	stamp(&s.VersionedRecord)
	return json.Marshal(s)
}

func DecodeGeneration(data []byte) (model.GenerationSnapshot, error) {
	var snapshot model.GenerationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.GenerationSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.GenerationSnapshot{}, err
	}
	return snapshot, nil
}

func EncodeRun(r model.RunSummary) ([]byte, error) {
	stamp(&r.VersionedRecord)
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}

func EncodeHallOfFame(records []model.HallOfFameRecord) ([]byte, error) {
	stamped := make([]model.HallOfFameRecord, len(records))
	copy(stamped, records)
	for i := range stamped {
		stamp(&stamped[i].VersionedRecord)
	}
	return json.Marshal(stamped)
}

func DecodeHallOfFame(data []byte) ([]model.HallOfFameRecord, error) {
	var records []model.HallOfFameRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	stamped := make([]model.LineageRecord, len(records))
	copy(stamped, records)
	for i := range stamped {
		stamp(&stamped[i].VersionedRecord)
	}
	return json.Marshal(stamped)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
