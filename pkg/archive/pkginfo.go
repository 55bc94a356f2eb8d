package archive

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// PkgInfo is the parsed content of a package's .PKGINFO file: "key = value"
// lines, repeatable for list-valued keys like license/depend/provides.
type PkgInfo struct {
	PkgName      string
	PkgVer       string
	PkgDesc      string
	URL          string
	BuildDate    time.Time
	Packager     string
	Size         int64
	Arch         string
	License      []string
	Group        []string
	Depend       []string
	OptDepend    []string
	MakeDepend   []string
	CheckDepend   []string
	Conflict     []string
	Provides     []string
	Replaces     []string
}

// ParsePkgInfo parses the "key = value" format .PKGINFO files use, which is
// a different shape from the %FIELD% block format of a sync database's
// desc file but the same overall scanner-over-lines approach.
func ParsePkgInfo(r io.Reader) (*PkgInfo, error) {
	info := &PkgInfo{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx == -1 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		switch key {
		case "pkgname":
			info.PkgName = value
		case "pkgver":
			info.PkgVer = value
		case "pkgdesc":
			info.PkgDesc = value
		case "url":
			info.URL = value
		case "builddate":
			if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.BuildDate = time.Unix(secs, 0).UTC()
			}
		case "packager":
			info.Packager = value
		case "size":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.Size = n
			}
		case "arch":
			info.Arch = value
		case "license":
			info.License = append(info.License, value)
		case "group":
			info.Group = append(info.Group, value)
		case "depend":
			info.Depend = append(info.Depend, value)
		case "optdepend":
			info.OptDepend = append(info.OptDepend, value)
		case "makedepend":
			info.MakeDepend = append(info.MakeDepend, value)
		case "checkdepend":
			info.CheckDepend = append(info.CheckDepend, value)
		case "conflict":
			info.Conflict = append(info.Conflict, value)
		case "provides":
			info.Provides = append(info.Provides, value)
		case "replaces":
			info.Replaces = append(info.Replaces, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return info, nil
}
