package v1

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/botcrew/botcrew/internal/common/apperr"
)

// RespondResource writes a single-resource success envelope.
func RespondResource(c *gin.Context, status int, resourceType, id string, attributes any) {
	c.JSON(status, Document{Data: NewResource(resourceType, id, attributes)})
}

// RespondList writes a collection success envelope.
func RespondList(c *gin.Context, status int, resources []Resource, meta any, links *Links) {
	if resources == nil {
		resources = []Resource{}
	}
	c.JSON(status, ListDocument{Data: resources, Meta: meta, Links: links})
}

// RespondError classifies err and writes the JSON:API error envelope
// with the matching status code.
func RespondError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	obj := ErrorObject{
		Status: strconv.Itoa(appErr.HTTPStatus()),
		Title:  appErr.Title(),
		Detail: appErr.Message,
	}
	if appErr.Field != "" {
		obj.Source = &ErrorSource{Pointer: "/" + appErr.Field}
	}
	c.JSON(appErr.HTTPStatus(), ErrorDocument{Errors: []ErrorObject{obj}})
}
