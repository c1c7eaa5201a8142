package scanner

// InputRecord is one page to check.
type InputRecord struct {
	URL string
	Raw []string
}

// Result holds the check outcome for a single page.
type Result struct {
	Raw          []string
	URL          string
	StartTime    string
	ResponseCode int64
	// LeakedURL is the forbidden http:// URL found, if any.
	LeakedURL string
	// LeakPage is the page or script that contained LeakedURL.
	LeakPage string
	PassTest bool
	Error    string
}
