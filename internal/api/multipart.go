package api

import (
	"bytes"
	"mime/multipart"
)

// Multipart is a replayable multipart/form-data body.
type Multipart struct {
	fields [][2]string
	files  []multipartFile
}

type multipartFile struct {
	field, name string
	content     []byte
}

func NewMultipart() *Multipart { return &Multipart{} }

func (m *Multipart) Field(name, value string) *Multipart {
	m.fields = append(m.fields, [2]string{name, value})
	return m
}

func (m *Multipart) File(field, filename string, content []byte) *Multipart {
	m.files = append(m.files, multipartFile{field: field, name: filename, content: content})
	return m
}

func (m *Multipart) encode() (*payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range m.fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	for _, f := range m.files {
		fw, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(f.content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &payload{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}
