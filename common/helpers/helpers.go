package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

//request bodies are small json objects, anything bigger than this is refused
const MAX_REQUEST_BODY = 1024 * 1024

var ErrBodyTooLarge = errors.New("request body too large")

type GenericErrorResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func badRequest(detail string) *GenericErrorResponse {
	return &GenericErrorResponse{Status: "error", Detail: detail}
}

/**
marshal the content and write it out with the given status. If marshalling fails nothing at all is
written, so the server sends a bare 200 with no body; callers only pass types that always marshal
*/
func WriteJsonContent(content interface{}, w http.ResponseWriter, statusCode int) {
	contentBytes, marshalErr := json.Marshal(content)
	if marshalErr != nil {
		log.Printf("ERROR WriteJsonContent could not marshal %T: %s", content, marshalErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(contentBytes)))
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(contentBytes); writeErr != nil {
		log.Printf("WARNING WriteJsonContent could not write response: %s", writeErr)
	}
}

/**
decode a json request body into `to`, refusing anything over MAX_REQUEST_BODY
*/
func ReadJsonBody(from io.Reader, to interface{}) error {
	byteContent, readErr := ioutil.ReadAll(io.LimitReader(from, MAX_REQUEST_BODY+1))
	if readErr != nil {
		return readErr
	}
	if len(byteContent) > MAX_REQUEST_BODY {
		return ErrBodyTooLarge
	}
	return json.Unmarshal(byteContent, to)
}

/**
returns true if the request uses one of the given methods. Otherwise a 405 with an Allow header has
already been written and the handler should just return
*/
func AssertHttpMethod(request *http.Request, w http.ResponseWriter, methods ...string) bool {
	for _, m := range methods {
		if request.Method == m {
			return true
		}
	}
	log.Printf("WARNING AssertHttpMethod got a %s request for %s, expecting %s", request.Method, request.RequestURI, strings.Join(methods, " or "))
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteJsonContent(GenericErrorResponse{"error", "wrong method type"}, w, http.StatusMethodNotAllowed)
	return false
}

/**
Breaks down the incoming request URI into its query parameters
*/
func GetQueryParams(incomingRequestUri string) (*url.Values, error) {
	requestUri, uriParseErr := url.ParseRequestURI(incomingRequestUri)
	if uriParseErr != nil {
		log.Printf("WARNING GetQueryParams could not understand request URI '%s': %s", incomingRequestUri, uriParseErr)
		return nil, errors.New("Invalid URI")
	}

	rtn := requestUri.Query()
	return &rtn, nil
}

func requiredParam(incomingRequestUri string, paramName string) (string, *GenericErrorResponse) {
	queryParams, err := GetQueryParams(incomingRequestUri)
	if err != nil {
		return "", badRequest(err.Error())
	}
	value := queryParams.Get(paramName)
	if value == "" {
		return "", badRequest(paramName + " parameter is required")
	}
	return value, nil
}

/**
gets the named uuid parameter from the request. Missing or malformed ids come back as a
GenericErrorResponse that can be written straight out as a 400
*/
func GetUuidFromQuerystring(incomingRequestUri string, paramName string) (*uuid.UUID, *GenericErrorResponse) {
	idString, paramErr := requiredParam(incomingRequestUri, paramName)
	if paramErr != nil {
		return nil, paramErr
	}
	id, uuidParseErr := uuid.Parse(idString)
	if uuidParseErr != nil {
		log.Printf("WARNING GetUuidFromQuerystring could not parse %s '%s': %s", paramName, idString, uuidParseErr)
		return nil, badRequest("malformed UUID")
	}
	return &id, nil
}

func GetStringFromQuerystring(incomingRequestUri string, paramName string) (string, *GenericErrorResponse) {
	return requiredParam(incomingRequestUri, paramName)
}

/**
optional non-negative integer parameter, defaultValue if it is not present
*/
func GetNonNegativeIntFromQuerystring(incomingRequestUri string, paramName string, defaultValue int64) (int64, *GenericErrorResponse) {
	queryParams, err := GetQueryParams(incomingRequestUri)
	if err != nil {
		return 0, badRequest(err.Error())
	}
	valueString := queryParams.Get(paramName)
	if valueString == "" {
		return defaultValue, nil
	}
	value, parseErr := strconv.ParseInt(valueString, 10, 64)
	if parseErr != nil || value < 0 {
		return 0, badRequest(fmt.Sprintf("%s must be a non-negative number", paramName))
	}
	return value, nil
}
