package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueryContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/carts?"+rawQuery, nil)
	return c
}

func TestTerminalRefFromQuery_ParsesStoreCodeAndTerminalNo(t *testing.T) {
	c := newQueryContext("terminalId=" + url.QueryEscape("S1:T1"))
	ref, err := terminalRefFromQuery(c)
	require.NoError(t, err)
	assert.Equal(t, "S1", ref.StoreCode)
	assert.Equal(t, "T1", ref.TerminalNo)
}

func TestTerminalRefFromQuery_RejectsMissingColon(t *testing.T) {
	c := newQueryContext("terminalId=S1T1")
	_, err := terminalRefFromQuery(c)
	assert.Error(t, err)
}

func TestTerminalRefFromQuery_RejectsEmptyParam(t *testing.T) {
	c := newQueryContext("")
	_, err := terminalRefFromQuery(c)
	assert.Error(t, err)
}

func newParamContext(storeCode, terminalNo string) *gin.Context {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/terminals/"+terminalNo+"?storeCode="+storeCode, nil)
	c.Params = gin.Params{{Key: "id", Value: terminalNo}}
	return c
}

func TestTerminalRefFromParam_ParsesStoreCodeAndPathID(t *testing.T) {
	c := newParamContext("S1", "T1")
	ref, err := terminalRefFromParam(c)
	require.NoError(t, err)
	assert.Equal(t, "S1", ref.StoreCode)
	assert.Equal(t, "T1", ref.TerminalNo)
}

func TestTerminalRefFromParam_RejectsMissingStoreCode(t *testing.T) {
	c := newParamContext("", "T1")
	_, err := terminalRefFromParam(c)
	assert.Error(t, err)
}
