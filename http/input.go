package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"posty/domain"
	"posty/errs"
)

// maxBodySize bounds request bodies: one image plus room for the form fields.
const maxBodySize = domain.MaxUploadSize + 1<<20

// input holds the scalar fields of a request body, whatever its encoding.
type input map[string]string

// readInput parses a JSON, multipart or urlencoded request body.
func readInput(w http.ResponseWriter, r *http.Request) (input, error) {
	in := input{}
	if r.Body == nil {
		return in, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, bodyError(err, "Invalid json body.")
		}
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				in[k] = t
			case float64:
				in[k] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				in[k] = strconv.FormatBool(t)
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, bodyError(err, "Invalid multipart body.")
		}
		for k, vs := range r.MultipartForm.Value {
			if len(vs) > 0 {
				in[k] = vs[0]
			}
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err, "Invalid form body.")
		}
		for k := range r.PostForm {
			in[k] = r.PostForm.Get(k)
		}
	}
	return in, nil
}

// bodyError turns a body parsing error into a validation error.
func bodyError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errs.Invalid("image", "The image field must not be greater than "+
			strconv.FormatInt(domain.MaxUploadSize>>10, 10)+" kilobytes.")
	}
	return errs.Errorf(errs.EINVALID, message)
}

// formFile returns the uploaded file of a multipart field, or nil if there is none.
// A file input submitted without a choice arrives as an unnamed empty part and
// counts as no file.
func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil
	}
	fh := r.MultipartForm.File[field][0]
	if fh.Filename == "" && fh.Size == 0 {
		return nil
	}
	return fh
}
