package server

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/krau/birefnet-go/imgio"
	"github.com/krau/birefnet-go/pipeline"
	"github.com/segmentio/ksuid"
)

const requestIDHeader = "X-Request-Id"

var errUnauthorized = errors.New("unauthorized")

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) checkToken(c *gin.Context) error {
	expectedToken := s.cfg.Token
	if expectedToken == "" {
		return nil
	}
	auth := c.GetHeader("Authorization")
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}
	return nil
}

func (s *Server) authenticate(c *gin.Context) {
	if err := s.checkToken(c); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "authentication failed"))
		return
	}
	c.Next()
}

func errorJSON(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

func (s *Server) RemoveHandler(c *gin.Context) {
	size, format, quality, err := s.params(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorJSON("INVALID_ARGUMENT", err.Error()))
		return
	}

	limit := int64(s.cfg.MaxUploadMB) << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, errorJSON("TOO_LARGE", "upload exceeds max_upload_mb"))
			return
		}
		c.JSON(http.StatusBadRequest, errorJSON("INVALID_ARGUMENT", "missing multipart field \"file\""))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorJSON(pipeline.CodeInvalidImage, "cannot open uploaded file"))
		return
	}
	defer file.Close()

	img, err := imgio.Decode(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorJSON(pipeline.ErrorCode(err), "cannot decode image"))
		return
	}

	select {
	case s.slots <- struct{}{}:
	case <-c.Request.Context().Done():
		return
	}
	out, err := s.pipeline.ProcessImage(c.Request.Context(), img, size)
	<-s.slots
	if err != nil {
		slog.Error("Background removal failed",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("error", err.Error()))
		msg := err.Error()
		var sizeErr *pipeline.SizeError
		if errors.As(err, &sizeErr) {
			msg += fmt.Sprintf(" (use ?size=%d)", sizeErr.Want)
		}
		c.JSON(statusFor(err), errorJSON(pipeline.ErrorCode(err), msg))
		return
	}

	var buf bytes.Buffer
	if err := imgio.Encode(&buf, out, format, quality); err != nil {
		c.JSON(http.StatusInternalServerError, errorJSON(pipeline.CodeEncodeFailed, err.Error()))
		return
	}
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func statusFor(err error) int {
	var inputErr *pipeline.InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) params(c *gin.Context) (int, imgio.Format, int, error) {
	size := s.cfg.Size
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, "", 0, errors.New("size must be an integer")
		}
		size = n
	}
	switch size {
	case 512, 1024, 2048:
	default:
		return 0, "", 0, errors.New("size must be 512, 1024 or 2048")
	}

	format, err := imgio.ParseFormat(c.DefaultQuery("format", s.cfg.Format))
	if err != nil {
		return 0, "", 0, err
	}

	quality := s.cfg.Quality
	if v := c.Query("quality"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return 0, "", 0, errors.New("quality must be between 1 and 100")
		}
		quality = n
	}
	return size, format, quality, nil
}

func (s *Server) InfoHandler(c *gin.Context) {
	d := s.pipeline.Device()
	c.JSON(http.StatusOK, gin.H{
		"model":       s.cfg.ModelID,
		"device":      d.String(),
		"device_name": d.Label(),
	})
}

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
