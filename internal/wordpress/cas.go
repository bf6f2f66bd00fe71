package wordpress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

// login runs the CAS form flow for service and leaves the session cookies
// in the jar.
func (e *Exporter) login(ctx context.Context, s *session, service string, creds Credentials) error {
	loginURL, err := url.Parse(e.opts.CASLoginURL)
	if err != nil || e.opts.CASLoginURL == "" {
		return apperrors.NewExportError("invalid CAS login url", err)
	}
	q := loginURL.Query()
	q.Set("service", service)
	loginURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL.String(), nil)
	if err != nil {
		return apperrors.NewExportError("cannot build CAS request", err)
	}
	resp, err := s.follow.Do(req)
	if err != nil {
		return apperrors.NewExportError("CAS login page request failed", err)
	}
	execution, err := executionToken(resp.Body)
	resp.Body.Close()
	if err != nil {
		return apperrors.NewExportError("cannot read CAS login page", err)
	}
	if execution == "" {
		return apperrors.NewExportError("CAS login page has no execution token", nil)
	}

	form := url.Values{
		"username":  {creds.Username},
		"password":  {creds.Password},
		"execution": {execution},
		"_eventId":  {"submit"},
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.NewExportError("cannot build CAS login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = s.noFollow.Do(req)
	if err != nil {
		return apperrors.NewExportError("CAS login request failed", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return apperrors.NewExportError(fmt.Sprintf("CAS login rejected with status %d", resp.StatusCode), nil)
	}

	location, err := resp.Location()
	if err != nil {
		return apperrors.NewExportError("CAS login response has no redirect", err)
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return apperrors.NewExportError("cannot build service ticket request", err)
	}
	resp, err = s.noFollow.Do(req)
	if err != nil {
		return apperrors.NewExportError("service ticket request failed", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// executionToken finds the value of the hidden "execution" input of a CAS form
func executionToken(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return "", nil
			}
			return "", z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "input" || !hasAttr {
				continue
			}
			var attrName, value string
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "name":
					attrName = string(val)
				case "value":
					value = string(val)
				}
				if !more {
					break
				}
			}
			if attrName == "execution" {
				return value, nil
			}
		}
	}
}
