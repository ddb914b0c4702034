package api

import _ "embed"

//go:embed swagger/agrirent.swagger.json
var SwaggerDoc []byte
