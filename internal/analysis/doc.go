// Package analysis provides clients for the external analysis service the
// pipeline delegates to: one async operation per step, JSON in, JSON out.
//
// Two implementations exist: HTTPClient posts against a dedicated analysis
// service, LLMClient prompts an OpenAI-compatible model through langchaingo
// and decodes the strict-JSON answer. Both normalize failures into errors;
// the step processors catch them and never let one escape the registry.
package analysis
