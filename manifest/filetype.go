package manifest

import (
	"github.com/pkg/errors"
)

// FileType identifies the business schema a data file's records belong to.
type FileType string

const (
	FileTypeBeneficiary        FileType = "BENEFICIARY"
	FileTypeBeneficiaryHistory FileType = "BENEFICIARY_HISTORY"
	FileTypeCarrier            FileType = "CARRIER"
	FileTypeDME                FileType = "DME"
	FileTypeHHA                FileType = "HHA"
	FileTypeHospice            FileType = "HOSPICE"
	FileTypeInpatient          FileType = "INPATIENT"
	FileTypeOutpatient         FileType = "OUTPATIENT"
	FileTypePDE                FileType = "PDE"
	FileTypeSNF                FileType = "SNF"
)

var AllFileTypes = []FileType{
	FileTypeBeneficiary,
	FileTypeBeneficiaryHistory,
	FileTypeCarrier,
	FileTypeDME,
	FileTypeHHA,
	FileTypeHospice,
	FileTypeInpatient,
	FileTypeOutpatient,
	FileTypePDE,
	FileTypeSNF,
}

func ParseFileType(val string) (FileType, error) {
	for _, t := range AllFileTypes {
		if string(t) == val {
			return t, nil
		}
	}
	return "", errors.Errorf("unknown file type: %s", val)
}
