/*
Package tracker implements the BoT-SORT multi object tracker.

Each frame's detections are split by confidence and associated to existing
tracks in two stages.  High confidence detections are matched first on a
cost that fuses box overlap with appearance embeddings, when a ReID
extractor is configured, and low confidence detections are then used to
recover tracks the first stage left behind.  Track motion is modelled with
a constant velocity Kalman filter and camera motion between frames is
compensated with a global homography estimated by the gmc package.

See example/botsort for a command line program running the tracker over
MOT Challenge sequences.
*/
package tracker
