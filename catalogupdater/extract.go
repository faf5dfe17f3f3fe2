package catalogupdater

import "regexp"

// idExtractor derives a file's id-column value from its name via the
// three-stage regex of spec §3: strip prefix match, strip suffix match,
// capture remainder. Grounded line-for-line on EDDTableFromFiles.java's
// scan loop (preExtractPattern/postExtractPattern/extractPattern).
type idExtractor struct {
	pre, post, extract *regexp.Regexp
}

func newIDExtractor(preRegex, postRegex, extractRegex string) (*idExtractor, error) {
	e := &idExtractor{}
	var err error
	if preRegex != "" {
		if e.pre, err = regexp.Compile(preRegex); err != nil {
			return nil, err
		}
	}
	if postRegex != "" {
		if e.post, err = regexp.Compile(postRegex); err != nil {
			return nil, err
		}
	}
	if extractRegex != "" {
		if e.extract, err = regexp.Compile(extractRegex); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Extract returns the id value for fileName. A file whose extract regex
// produces an empty match yields "" (spec scenario S5).
func (e *idExtractor) Extract(fileName string) string {
	name := fileName
	if e.pre != nil {
		if loc := e.pre.FindStringIndex(name); loc != nil {
			name = name[:loc[0]] + name[loc[1]:]
		}
	}
	if e.post != nil {
		if loc := e.post.FindStringIndex(name); loc != nil {
			name = name[:loc[0]] + name[loc[1]:]
		}
	}
	if e.extract == nil {
		return name
	}
	if loc := e.extract.FindStringIndex(name); loc != nil {
		return name[loc[0]:loc[1]]
	}
	return ""
}
