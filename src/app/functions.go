package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Envelope is the JSON body every remote function answers with.
type Envelope struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// FormFile is the file part of a multipart invocation.
type FormFile struct {
	Field    string
	Filename string
	Content  []byte
}

// Invoker calls named remote functions with the caller's bearer token.
type Invoker interface {
	Invoke(ctx context.Context, name, bearerToken string, body any) (*Envelope, error)
	InvokeMultipart(ctx context.Context, name, bearerToken string, fields map[string]string, file FormFile) (*Envelope, error)
}

type (
	requestPipeline struct {
		parametersParser func(params any) (io.Reader, string, error)
		postProcess      func(status int, responseBody []byte) (*Envelope, error)
	}

	multipartParams struct {
		fields map[string]string
		file   FormFile
	}

	FunctionClient struct {
		baseURL string
		client  *http.Client
	}
)

func NewFunctionClient(baseURL string, timeout time.Duration) *FunctionClient {
	return &FunctionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    timeout,
				DisableCompression: true,
			},
		},
	}
}

func (f *FunctionClient) Invoke(ctx context.Context, name, bearerToken string, body any) (*Envelope, error) {
	pipe := requestPipeline{parametersParser: prepareJSONBody, postProcess: decodeEnvelope}
	return f.execute(ctx, pipe, name, bearerToken, body)
}

func (f *FunctionClient) InvokeMultipart(ctx context.Context, name, bearerToken string, fields map[string]string, file FormFile) (*Envelope, error) {
	pipe := requestPipeline{parametersParser: prepareMultipartFile, postProcess: decodeEnvelope}
	return f.execute(ctx, pipe, name, bearerToken, multipartParams{fields: fields, file: file})
}

func (f *FunctionClient) execute(ctx context.Context, pipe requestPipeline, name, bearerToken string, params any) (*Envelope, error) {
	reader, contentType, err := pipe.parametersParser(params)
	if err != nil {
		return nil, NewFailure(ErrRemoteFunction, "Could not prepare the request", err)
	}
	endpoint := fmt.Sprintf("%s/%s", f.baseURL, name)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, NewFailure(ErrRemoteFunction, "Could not prepare the request", err)
	}
	request.Header.Set("Content-Type", contentType)
	if bearerToken != "" {
		request.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := f.client.Do(request)
	if err != nil {
		return nil, NewFailure(ErrRemoteFunction, fmt.Sprintf("Function %s is unreachable", name), err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewFailure(ErrRemoteFunction, fmt.Sprintf("Function %s returned an unreadable response", name), err)
	}
	return pipe.postProcess(resp.StatusCode, responseBody)
}

func prepareJSONBody(params any) (io.Reader, string, error) {
	parsedJSON, err := json.Marshal(params)
	if err != nil {
		return nil, "", fmt.Errorf("can not marshal JSON: %w", err)
	}
	return bytes.NewReader(parsedJSON), "application/json", nil
}

func prepareMultipartFile(params any) (io.Reader, string, error) {
	p, ok := params.(multipartParams)
	if !ok {
		return nil, "", fmt.Errorf("unexpected multipart params %T", params)
	}
	bodyReader := new(bytes.Buffer)
	writer := multipart.NewWriter(bodyReader)
	for name, value := range p.fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	part, err := writer.CreateFormFile(p.file.Field, p.file.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(p.file.Content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return bodyReader, writer.FormDataContentType(), nil
}

func decodeEnvelope(status int, responseBody []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(responseBody, env); err != nil {
		if status >= http.StatusMultipleChoices {
			return nil, NewFailure(ErrRemoteFunction, fmt.Sprintf("Function failed with HTTP %d", status), nil)
		}
		return nil, NewFailure(ErrRemoteFunction, "Function returned malformed JSON", err)
	}
	if status >= http.StatusMultipleChoices || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("Function failed with HTTP %d", status)
		}
		return env, NewFailure(ErrRemoteFunction, msg, nil)
	}
	return env, nil
}
