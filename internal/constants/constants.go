package constants

// ConfidenceSteps are the discrete values extraction confidences are
// quantized onto (0.0 = unreadable, 1.0 = exact match). Review tooling
// groups fields by these steps, so providers must not emit values between
// them.
var ConfidenceSteps = []float64{0.0, 0.2, 0.4, 0.6, 0.8, 1.0}
