package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	app "memcap/src/app"
)

type (
	AppHandler struct {
		uploader *app.Uploader
		gallery  *app.Gallery
		details  *app.Details
		notifier app.Notifier
		maxBytes int64
	}

	PostImageBase64Body struct {
		Filename string `json:"filename"`
		MimeType string `json:"mime_type"`
		Data     string `json:"data"`
		Animate  bool   `json:"animate"`
	}
)

const (
	imageFormField   = "image"
	contentTypeImage = "image/jpeg"

	// room for multipart headers and the JSON envelope around the image
	bodySlack = 64 << 10
)

func NewS3Handler(uploader *app.Uploader, gallery *app.Gallery, details *app.Details, notifier app.Notifier, maxBytes int64) *AppHandler {
	return &AppHandler{
		uploader: uploader,
		gallery:  gallery,
		details:  details,
		notifier: notifier,
		maxBytes: maxBytes,
	}
}

// PostImage uploads a multipart "image" file.
func (a *AppHandler) PostImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxBytes+bodySlack)

	var asset *app.Asset
	header, err := c.FormFile(imageFormField)
	switch {
	case err == nil:
		asset = multipartAsset(header)
	case a.tooLarge(err) != nil:
		respondError(c, a.tooLarge(err))
		return
	case !errors.Is(err, http.ErrMissingFile):
		respondError(c, app.NewFailure(app.ErrReadFailure, "The selected image can not be read", err))
		return
	}
	animate, _ := strconv.ParseBool(c.PostForm("animate"))
	a.upload(c, asset, animate)
}

// PostImageBase64 uploads an image sent as base64 text.
func (a *AppHandler) PostImageBase64(c *gin.Context) {
	// base64 grows the image by a third; line breaks add up to 1/16 more
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxBytes/3*4+a.maxBytes/16+bodySlack)

	var requestBody PostImageBase64Body
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		if tooLarge := a.tooLarge(err); tooLarge != nil {
			respondError(c, tooLarge)
			return
		}
		respondError(c, app.NewFailure(app.ErrValidation, "Malformed upload request", err))
		return
	}
	var asset *app.Asset
	if requestBody.Data != "" {
		asset = app.Base64Asset(requestBody.Filename, requestBody.MimeType, requestBody.Data)
	}
	a.upload(c, asset, requestBody.Animate)
}

func (a *AppHandler) upload(c *gin.Context, asset *app.Asset, animate bool) {
	session := currentSession(c)
	opts := app.UploadOptions{
		Animate:     animate,
		AccessToken: session.AccessToken,
		Progress: func(percent int) {
			a.notifier.Notify(session.User.ID, app.Event{
				Type:    app.EventUploadProgress,
				Payload: gin.H{"percent": percent, "request_id": c.GetString(requestIDKey)},
			})
		},
	}
	res, err := a.uploader.Upload(c.Request.Context(), asset, &session.User, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, res)
}

func (a *AppHandler) GetImageList(c *gin.Context) {
	session := currentSession(c)
	items, err := a.gallery.ListPhotos(c.Request.Context(), &session.User)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, items)
}

func (a *AppHandler) GetImage(c *gin.Context) {
	session := currentSession(c)
	detail, err := a.details.GetPhotoDetail(c.Request.Context(), c.Param("id"), &session.User)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, detail)
}

func (a *AppHandler) GetThumbnail(c *gin.Context) {
	session := currentSession(c)
	thumb, err := a.gallery.Thumbnail(c.Request.Context(), c.Param("id"), &session.User)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, contentTypeImage, thumb)
}

func (a *AppHandler) DeleteImage(c *gin.Context) {
	session := currentSession(c)
	if err := a.details.DeletePhoto(c.Request.Context(), c.Param("id"), &session.User); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// tooLarge turns a body that hit the request limit into a validation failure.
func (a *AppHandler) tooLarge(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return app.TooLarge(a.maxBytes, err)
	}
	return nil
}

func multipartAsset(header *multipart.FileHeader) *app.Asset {
	return app.NewAsset(header.Filename, header.Header.Get("Content-Type"), header.Size, func() (io.ReadCloser, error) {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", header.Filename, err)
		}
		return file, nil
	})
}
