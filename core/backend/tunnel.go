package backend

import (
	"net/http"
	"sort"
	"strings"

	"github.com/relabs-tech/resourceful/core"
	"github.com/relabs-tech/resourceful/core/logger"
)

const (
	tunnelParamName  = "$method"
	tunnelHeaderName = "X-HTTP-Method-Override"
)

// EnablePostTunneling allows other request methods to be tunneled via
// POST, by default DELETE, PATCH and PUT.
//
// The method can be given as the "$method" query parameter, as a form
// parameter of the same name, or as the "X-HTTP-Method-Override" header.
// The query parameter wins over the form parameter, which wins over the
// header. The request method is rewritten before routing and the override
// token is stripped, so application code never sees either. A method
// outside the allow list fails the request with 405.
func (b *Backend) EnablePostTunneling(allowedMethods ...string) {
	if len(allowedMethods) == 0 {
		allowedMethods = []string{http.MethodDelete, http.MethodPatch, http.MethodPut}
	}
	sort.Strings(allowedMethods)
	disallowed := "only these methods may be tunneled over POST: " + strings.Join(allowedMethods, ", ")

	next := b.handler
	b.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			method := ""
			if query := r.URL.Query(); query.Has(tunnelParamName) {
				method = query.Get(tunnelParamName)
				query.Del(tunnelParamName)
				r.URL.RawQuery = query.Encode()
			} else if formValue := tunnelFormValue(r); formValue != "" {
				method = formValue
				r.PostForm.Del(tunnelParamName)
				if r.Form != nil {
					r.Form.Del(tunnelParamName)
				}
			} else if header := r.Header.Get(tunnelHeaderName); header != "" {
				method = header
				r.Header.Del(tunnelHeaderName)
			}
			if method != "" {
				found := false
				for _, allowed := range allowedMethods {
					if allowed == method {
						found = true
						break
					}
				}
				if !found {
					core.WriteError(w, core.MethodNotAllowedf("%s", disallowed))
					return
				}
				logger.FromContext(r.Context()).Debugln("tunneling", method, "over POST for", r.URL)
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}

// tunnelFormValue reads the override parameter from a form encoded body.
// ParseForm caches its result on the request, so the body stays available
// to the resource through the parsed form.
func tunnelFormValue(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return ""
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostForm.Get(tunnelParamName)
}
