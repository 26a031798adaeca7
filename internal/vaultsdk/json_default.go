//go:build !sonic

package vaultsdk

import (
	"github.com/goccy/go-json"
)

// for imroc/req
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
