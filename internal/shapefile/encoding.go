package shapefile

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// cpgAliases maps code page names written by GIS tools to WHATWG labels.
var cpgAliases = map[string]string{
	"1252":   "windows-1252",
	"ansi":   "windows-1252",
	"88591":  "iso-8859-1",
	"latin1": "iso-8859-1",
	"utf8":   "utf-8",
}

// attributeDecoder returns a function converting raw DBF strings of the
// shapefile at shpPath to UTF-8. Without a .cpg file strings are kept as is.
func attributeDecoder(shpPath string) (func(string) (string, error), error) {
	identity := func(s string) (string, error) { return s, nil }

	raw, err := os.ReadFile(strings.TrimSuffix(shpPath, ".shp") + ".cpg")
	if os.IsNotExist(err) {
		return identity, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: read code page of %s", shpPath)
	}

	label := strings.ToLower(strings.TrimSpace(string(raw)))
	if alias, ok := cpgAliases[strings.ReplaceAll(label, "-", "")]; ok {
		label = alias
	}
	if label == "" || label == "utf-8" {
		return identity, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: unsupported code page %q", label)
	}
	dec := enc.NewDecoder()
	return func(s string) (string, error) {
		return dec.String(s)
	}, nil
}
