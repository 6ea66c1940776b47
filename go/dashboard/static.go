package dashboard

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// uiHandler serves the dashboard single-page app: the embedded build by
// default, or an on-disk directory during UI development.
func uiHandler(uiPath string) http.Handler {
	if uiPath != "" {
		return http.FileServer(http.Dir(uiPath))
	}
	var sub, err = fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // The static directory is embedded at build time.
	}
	return http.FileServer(http.FS(sub))
}
