package manifest

// SyntheaEndState is the optional block of generator end-state metadata some
// synthetic data sets carry. The bounds describe the identifier ranges the
// generator consumed; synthetic identifiers are always negative, so a
// non-negative bound means the block was produced incorrectly.
type SyntheaEndState struct {
	ClmGrpIdStart       int64  `xml:"clm_grp_id_start"`
	PdeIdStart          int64  `xml:"pde_id_start"`
	CarrClmCntlNumStart int64  `xml:"carr_clm_cntl_num_start"`
	FiDocCntlNumStart   string `xml:"fi_doc_cntl_num_start"`
	HicnStart           string `xml:"hicn_start"`
	BeneIdStart         int64  `xml:"bene_id_start"`
	ClmIdStart          int64  `xml:"clm_id_start"`
	MbiStart            string `xml:"mbi_start"`
	BeneIdEnd           int64  `xml:"bene_id_end"`
	ClmIdEnd            int64  `xml:"clm_id_end"`
	PdeIdEnd            int64  `xml:"pde_id_end"`
	Generated           string `xml:"generated"`
}

// Valid reports whether the end-state metadata is usable: every numeric bound
// negative and both hash starting points present. This is advisory metadata,
// not enforced at parse time - callers decide what an invalid block means for
// their load mode.
func (s *SyntheaEndState) Valid() bool {
	if s == nil {
		return false
	}
	bounds := []int64{
		s.ClmGrpIdStart,
		s.PdeIdStart,
		s.CarrClmCntlNumStart,
		s.BeneIdStart,
		s.ClmIdStart,
		s.BeneIdEnd,
		s.ClmIdEnd,
		s.PdeIdEnd,
	}
	for _, b := range bounds {
		if b >= 0 {
			return false
		}
	}
	return s.HicnStart != "" && s.MbiStart != ""
}
