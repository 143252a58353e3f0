// Package postflight runs actions against a completed response, such as
// copying a token from the body into a variable for later requests.
//
// A rule reads one value from the status code, a header or the JSON body
// (by JSONPath) and stores it under a variable name. An optional expression
// guards the rule:
//
//	x, err := postflight.NewExtractor([]postflight.Rule{{
//	    Variable: "token",
//	    Source:   postflight.SourceBody,
//	    Path:     "$.data.token",
//	    When:     "status == 200",
//	}}, vars)
package postflight
