package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Chi2Inv95 holds the 0.95 quantile of the chi-square distribution for
// N degrees of freedom (N = 1..9), used as the Mahalanobis gating threshold
var Chi2Inv95 = map[int]float32{
	1: 3.8415,
	2: 5.9915,
	3: 7.8147,
	4: 9.4877,
	5: 11.070,
	6: 12.592,
	7: 14.067,
	8: 15.507,
	9: 16.919,
}

// ErrCovarianceNotPD is returned when the projected covariance can not be
// Cholesky factorized
var ErrCovarianceNotPD = errors.New("projected covariance is not positive definite")

// MotionModel predicts a track's next frame geometry and corrects it from
// an observation.  Implementations hold no per track state, all state is
// passed in and mutated in place.
type MotionModel interface {
	// Initiate initializes the state mean and covariance from a measurement
	Initiate(mean StateMean, covariance *StateCov, measurement DetectBox)
	// Predict advances the state one frame
	Predict(mean StateMean, covariance *StateCov)
	// Update corrects the state with a measurement
	Update(mean StateMean, covariance *StateCov, measurement DetectBox) error
	// GatingDistance returns the squared Mahalanobis distance between the
	// state distribution and each measurement
	GatingDistance(mean StateMean, covariance *StateCov,
		measurements []DetectBox, onlyPosition bool) ([]float32, error)
}

// DetectBox represents a 1x4 matrix using a slice of float32
type DetectBox []float32

// StateMean represents a 1x8 matrix using a slice of float32
type StateMean []float32

// StateCov represents an 8x8 matrix
type StateCov struct {
	*mat.Dense
}

// StateHMean represents a 1x4 matrix using a slice of float32
type StateHMean []float32

// StateHCov represents a 4x4 matrix
type StateHCov struct {
	*mat.SymDense
}

// KalmanFilter is a constant velocity Kalman filter over the 8 dimensional
// state (x, y, a, h, vx, vy, va, vh) where (x, y) is the box center, a the
// aspect ratio and h the height
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	ndim := 4
	dt := float32(1.0)

	// create identity matrix for motionMat
	motionMat := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motionMat.Set(i, i, float64(1.0))
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, float64(dt))
	}

	// create updateMat as a 4x8 matrix with first 4 diagonal elements set to 1
	updateMat := mat.NewDense(4, 8, nil)

	for i := 0; i < 4; i++ {
		updateMat.Set(i, i, float64(1.0))
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// DefaultKalmanFilter returns the filter with the standard deviation weights
// used by SORT derived trackers
func DefaultKalmanFilter() *KalmanFilter {
	return NewKalmanFilter(1.0/20, 1.0/160)
}

// Initiate initializes the state mean and covariance
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement DetectBox) {

	// copy the first four elements of the measurement into the mean
	copy(mean[:4], measurement[:4])

	// velocities start at rest
	for i := 4; i < 8; i++ {
		mean[i] = 0.0
	}

	h := measurement[3]

	// initial uncertainty scales with the box height
	std := StateMean{
		2 * kf.stdWeightPosition * h,  // x position
		2 * kf.stdWeightPosition * h,  // y position
		1e-2,                          // aspect ratio
		2 * kf.stdWeightPosition * h,  // height
		10 * kf.stdWeightVelocity * h, // x velocity
		10 * kf.stdWeightVelocity * h, // y velocity
		1e-5,                          // aspect ratio velocity
		10 * kf.stdWeightVelocity * h, // height velocity
	}

	// reuse the covariance storage when the track is re-initiated
	if covariance.Dense == nil {
		covariance.Dense = mat.NewDense(8, 8, nil)
	} else {
		covariance.Zero()
	}

	// set the diagonal elements of the covariance matrix to the variances
	for i, v := range std {
		covariance.Set(i, i, float64(v*v))
	}
}

// Predict predicts the next state mean and covariance
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	h := mean[3]

	// process noise standard deviations for the state variables
	std := StateMean{
		kf.stdWeightPosition * h, // x position
		kf.stdWeightPosition * h, // y position
		1e-2,                     // aspect ratio
		kf.stdWeightPosition * h, // height
		kf.stdWeightVelocity * h, // x velocity
		kf.stdWeightVelocity * h, // y velocity
		1e-5,                     // aspect ratio velocity
		kf.stdWeightVelocity * h, // height velocity
	}

	// motion noise with the variances on the diagonal
	motionCov := mat.NewDense(8, 8, nil)

	for i, v := range std {
		motionCov.Set(i, i, float64(v*v))
	}

	// predict the next state mean using the motion model
	predicted := mat.NewVecDense(8, nil)
	predicted.MulVec(kf.motionMat, mat.NewVecDense(8, meanToFloat64(mean)))

	for i := 0; i < 8; i++ {
		mean[i] = float32(predicted.AtVec(i))
	}

	// predict the next state covariance, P = F P F' + Q
	cov := covariance.Dense
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update updates the state mean and covariance
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement DetectBox) error {

	// project the state mean and covariance to measurement space
	projectedMean, projectedCov := kf.project(mean, covariance)

	// perform Cholesky factorization of the projected covariance matrix
	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return ErrCovarianceNotPD
	}

	// compute the matrix B for Kalman gain calculation
	B := mat.NewDense(8, 4, nil)
	B.Mul(covariance.Dense, kf.updateMat.T())

	// compute the Kalman gain using the Cholesky factorization
	var kalmanGain mat.Dense
	err := chol.SolveTo(&kalmanGain, B.T())

	if err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	// compute the innovation (measurement residual)
	innovation := make([]float64, 4)

	for i := 0; i < 4; i++ {
		innovation[i] = float64(measurement[i] - projectedMean[i])
	}

	// update the state mean with the innovation
	innovationVec := mat.NewVecDense(4, innovation)
	tmp := mat.NewVecDense(8, nil)
	tmp.MulVec(kalmanGain.T(), innovationVec)

	for i := 0; i < 8; i++ {
		mean[i] += float32(tmp.AtVec(i))
	}

	// update the state covariance, P = P - K' S K
	temp := mat.NewDense(8, 4, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	temp2 := mat.NewDense(8, 8, nil)
	temp2.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(8, 8, nil)
	newCov.Sub(covariance.Dense, temp2)

	covariance.Dense = newCov

	return nil
}

// GatingDistance computes the squared Mahalanobis distance between the
// projected state distribution and each of the measurements.  When
// onlyPosition is set only the box center is considered and the result
// should be compared against Chi2Inv95[2], otherwise Chi2Inv95[4].
func (kf *KalmanFilter) GatingDistance(mean StateMean, covariance *StateCov,
	measurements []DetectBox, onlyPosition bool) ([]float32, error) {

	projectedMean, projectedCov := kf.project(mean, covariance)

	// gate on x, y, aspect ratio and height, or the center only
	dims := 4

	if onlyPosition {
		dims = 2
	}

	cov := mat.NewSymDense(dims, nil)

	for i := 0; i < dims; i++ {
		for j := i; j < dims; j++ {
			cov.SetSym(i, j, projectedCov.At(i, j))
		}
	}

	// factorize once and solve for every measurement
	chol := mat.Cholesky{}

	if ok := chol.Factorize(cov); !ok {
		return nil, ErrCovarianceNotPD
	}

	dists := make([]float32, len(measurements))
	diff := mat.NewVecDense(dims, nil)
	solved := mat.NewVecDense(dims, nil)

	for i, m := range measurements {

		for d := 0; d < dims; d++ {
			diff.SetVec(d, float64(m[d]-projectedMean[d]))
		}

		if err := chol.SolveVecTo(solved, diff); err != nil {
			return nil, fmt.Errorf("failed to solve gating distance: %w", err)
		}

		// d' S^-1 d
		dists[i] = float32(mat.Dot(diff, solved))
	}

	return dists, nil
}

// project projects the state mean and covariance to measurement space
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (StateHMean, *StateHCov) {

	h := mean[3]

	// compute standard deviations for the measurement noise
	std := DetectBox{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-1,
		kf.stdWeightPosition * h,
	}

	// create the innovation covariance matrix (measurement noise covariance)
	innovationCov := mat.NewSymDense(4, nil)

	for i, v := range std {
		innovationCov.SetSym(i, i, float64(v*v))
	}

	// project the state mean to measurement space
	projectedMeanVec := mat.NewVecDense(4, nil)
	projectedMeanVec.MulVec(kf.updateMat, mat.NewVecDense(8, meanToFloat64(mean)))

	// project the state covariance to measurement space, H P H'
	temp := mat.NewDense(4, 8, nil)
	temp.Mul(kf.updateMat, covariance.Dense)
	temp2 := mat.NewDense(4, 4, nil)
	temp2.Mul(temp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}

	// add the innovation covariance to the projected covariance
	projectedCov.AddSym(projectedCov, innovationCov)

	projectedMean := make(StateHMean, 4)

	for i := 0; i < 4; i++ {
		projectedMean[i] = float32(projectedMeanVec.AtVec(i))
	}

	return projectedMean, &StateHCov{projectedCov}
}

// meanToFloat64 widens the state mean for use with gonum
func meanToFloat64(mean StateMean) []float64 {
	data := make([]float64, len(mean))

	for i, v := range mean {
		data[i] = float64(v)
	}

	return data
}
