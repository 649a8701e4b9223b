package distribution

// Family names a distribution family. The string values are the ones used in task files.
type Family string

const (
	FamilyScalar      Family = "Scalar"
	FamilyNormal      Family = "Normal"
	FamilyExponential Family = "Exponential"
	FamilyLogNormal   Family = "LogNormal"
	FamilyGamma       Family = "Gamma"
	FamilyBeta        Family = "Beta"
	FamilyUniform     Family = "Uniform"
	FamilyBinomial    Family = "Binomial"
	FamilyPoisson     Family = "Poisson"
	FamilyPDF         Family = "Pdf"
)

// Distribution is a closed set of distribution specifications.
// The concrete types below are the only implementations.
type Distribution interface {
	Family() Family
	isDistribution()
}

// Scaling maps a raw sample x to x*Scale + Offset.
type Scaling struct {
	Scale  float64
	Offset float64
}

// Apply returns x*Scale + Offset. A nil Scaling is the identity.
func (s *Scaling) Apply(x float64) float64 {
	if s == nil {
		return x
	}
	return x*s.Scale + s.Offset
}

// TruncationMode selects how out-of-range samples are handled.
type TruncationMode string

const (
	// TruncateClamp draws once and clamps into [Min, Max].
	TruncateClamp TruncationMode = "clamp"
	// TruncateExclude draws a batch and keeps the first in-range sample.
	TruncateExclude TruncationMode = "exclude"
)

// Truncation constrains samples to [Min, Max]. Min must be strictly lower than Max.
// An empty Mode means TruncateExclude.
type Truncation struct {
	Min  float64
	Max  float64
	Mode TruncationMode
}

// Modifiers are the optional post-processing steps shared by the sampled families.
// Scaling runs first, truncation is checked against the scaled value.
type Modifiers struct {
	Scaling    *Scaling
	Truncation *Truncation
}

// Scalar is a fixed value. Scaling and truncation never apply to it.
type Scalar struct {
	Value float64
}

type Normal struct {
	Mean float64
	Std  float64
	Modifiers
}

type Exponential struct {
	Rate float64
	Modifiers
}

// LogNormal is parametrised by the mean and standard deviation of the underlying normal.
type LogNormal struct {
	Mean float64
	Std  float64
	Modifiers
}

type Gamma struct {
	Shape float64
	Rate  float64
	Modifiers
}

type Beta struct {
	Alpha float64
	Beta  float64
	Modifiers
}

type Uniform struct {
	Min float64
	Max float64
	Modifiers
}

type Binomial struct {
	P float64
	N int
	Modifiers
}

type Poisson struct {
	Rate float64
	Modifiers
}

// PDF is an explicit discrete distribution over Index with weights Pdf.
// Weights need not sum to one; they are normalised at draw time.
type PDF struct {
	index []float64
	pdf   []float64
}

// NewPDF copies index and pdf so the returned value cannot be changed by the caller.
func NewPDF(index, pdf []float64) PDF {
	return PDF{
		index: append([]float64(nil), index...),
		pdf:   append([]float64(nil), pdf...),
	}
}

// Index returns a copy of the support values.
func (p PDF) Index() []float64 { return append([]float64(nil), p.index...) }

// Weights returns a copy of the (unnormalised) weights.
func (p PDF) Weights() []float64 { return append([]float64(nil), p.pdf...) }

func (Scalar) Family() Family      { return FamilyScalar }
func (Normal) Family() Family      { return FamilyNormal }
func (Exponential) Family() Family { return FamilyExponential }
func (LogNormal) Family() Family   { return FamilyLogNormal }
func (Gamma) Family() Family       { return FamilyGamma }
func (Beta) Family() Family        { return FamilyBeta }
func (Uniform) Family() Family     { return FamilyUniform }
func (Binomial) Family() Family    { return FamilyBinomial }
func (Poisson) Family() Family     { return FamilyPoisson }
func (PDF) Family() Family         { return FamilyPDF }

func (Scalar) isDistribution()      {}
func (Normal) isDistribution()      {}
func (Exponential) isDistribution() {}
func (LogNormal) isDistribution()   {}
func (Gamma) isDistribution()       {}
func (Beta) isDistribution()        {}
func (Uniform) isDistribution()     {}
func (Binomial) isDistribution()    {}
func (Poisson) isDistribution()     {}
func (PDF) isDistribution()         {}
